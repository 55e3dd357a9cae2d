// Package middleware holds the HTTP middleware chain: signed-request
// authentication, rate limiting, request logging and CORS.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/cardmarket/internal/crypto"
	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// maxBodyBytes bounds request bodies read for signature checks.
const maxBodyBytes = 1 << 20

// Verifier recovers the caller of a signed request.
type Verifier interface {
	Verify(method, path string, body []byte, address, timestamp, signature string) (domain.Address, error)
}

type callerKey struct{}

// WithCaller returns ctx carrying the authenticated caller.
func WithCaller(ctx context.Context, addr domain.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// CallerFrom returns the authenticated caller, if any.
func CallerFrom(ctx context.Context) (domain.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(domain.Address)
	return addr, ok
}

// SignedRequests authenticates every request that is not a GET, HEAD or
// OPTIONS. The recovered signer becomes the caller for the handler.
func SignedRequests(v Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			caller, err := v.Verify(r.Method, r.URL.Path, body,
				r.Header.Get(crypto.HeaderAddress),
				r.Header.Get(crypto.HeaderTimestamp),
				r.Header.Get(crypto.HeaderSignature),
			)
			if err != nil {
				msg := "invalid request signature"
				if errors.Is(err, domain.ErrBadSignature) {
					msg = err.Error()
				}
				logger.DebugContext(r.Context(), "rejected unsigned request",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeJSONError(w, http.StatusUnauthorized, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}
