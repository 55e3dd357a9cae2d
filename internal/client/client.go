// Package client is a REST client for the cardmarket HTTP API. Mutating calls
// are signed with the caller's key so the server can recover the caller
// address from the request.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/cardmarket/internal/crypto"
	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// Client talks to one cardmarket server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
}

// New creates a client for baseURL, e.g. "http://localhost:8000". signer may
// be nil for read-only use.
func New(baseURL string, signer *crypto.Signer) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer: signer,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Health returns the raw health document.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, "/api/health", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status returns the daemon mode and market parameters.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.get(ctx, "/api/status", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Listings returns every active listing.
func (c *Client) Listings(ctx context.Context) ([]domain.ListingView, error) {
	var out struct {
		Listings []domain.ListingView `json:"listings"`
	}
	if err := c.get(ctx, "/api/listings", &out); err != nil {
		return nil, err
	}
	return out.Listings, nil
}

// Listing returns the view of one asset's listing.
func (c *Client) Listing(ctx context.Context, id domain.AssetID) (domain.ListingView, error) {
	var out domain.ListingView
	err := c.get(ctx, fmt.Sprintf("/api/listings/%d", id), &out)
	return out, err
}

// Auction returns the auction view of one asset.
func (c *Client) Auction(ctx context.Context, id domain.AssetID) (domain.AuctionView, error) {
	var out domain.AuctionView
	err := c.get(ctx, fmt.Sprintf("/api/auctions/%d", id), &out)
	return out, err
}

// PendingBalance returns the escrow balance owed to addr.
func (c *Client) PendingBalance(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	var out struct {
		Pending domain.Amount `json:"pending"`
	}
	if err := c.get(ctx, "/api/escrow/"+addr.Hex(), &out); err != nil {
		return 0, err
	}
	return out.Pending, nil
}

// Settlements returns completed sales, newest first.
func (c *Client) Settlements(ctx context.Context, limit int) ([]domain.Settlement, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/api/settlements"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Settlements []domain.Settlement `json:"settlements"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Settlements, nil
}

// ListCard lists id at a fixed price.
func (c *Client) ListCard(ctx context.Context, id domain.AssetID, price domain.Amount) (domain.ListingView, error) {
	var out domain.ListingView
	err := c.signed(ctx, http.MethodPost, "/api/listings", map[string]any{
		"asset_id": id,
		"price":    price,
	}, &out)
	return out, err
}

// CancelListing withdraws the caller's listing of id.
func (c *Client) CancelListing(ctx context.Context, id domain.AssetID) (domain.ListingView, error) {
	var out domain.ListingView
	err := c.signed(ctx, http.MethodDelete, fmt.Sprintf("/api/listings/%d", id), nil, &out)
	return out, err
}

// BuyCard buys id paying paid. Any excess over the price is refunded.
func (c *Client) BuyCard(ctx context.Context, id domain.AssetID, paid domain.Amount) (domain.Settlement, error) {
	var out domain.Settlement
	err := c.signed(ctx, http.MethodPost, fmt.Sprintf("/api/listings/%d/buy", id), map[string]any{
		"paid": paid,
	}, &out)
	return out, err
}

// StartAuction opens an auction for id.
func (c *Client) StartAuction(ctx context.Context, id domain.AssetID, startingBid domain.Amount, d time.Duration) (domain.AuctionView, error) {
	var out domain.AuctionView
	err := c.signed(ctx, http.MethodPost, "/api/auctions", map[string]any{
		"asset_id":         id,
		"starting_bid":     startingBid,
		"duration_seconds": int64(d / time.Second),
	}, &out)
	return out, err
}

// PlaceBid bids amount on the auction of id.
func (c *Client) PlaceBid(ctx context.Context, id domain.AssetID, amount domain.Amount) (domain.AuctionView, error) {
	var out domain.AuctionView
	err := c.signed(ctx, http.MethodPost, fmt.Sprintf("/api/auctions/%d/bids", id), map[string]any{
		"amount": amount,
	}, &out)
	return out, err
}

// FinalizeAuction closes an ended auction.
func (c *Client) FinalizeAuction(ctx context.Context, id domain.AssetID) (domain.Settlement, error) {
	var out domain.Settlement
	err := c.signed(ctx, http.MethodPost, fmt.Sprintf("/api/auctions/%d/finalize", id), nil, &out)
	return out, err
}

// Withdraw pays out the caller's pending escrow balance.
func (c *Client) Withdraw(ctx context.Context) (domain.Amount, error) {
	var out struct {
		Withdrawn domain.Amount `json:"withdrawn"`
	}
	if err := c.signed(ctx, http.MethodPost, "/api/escrow/withdraw", nil, &out); err != nil {
		return 0, err
	}
	return out.Withdrawn, nil
}

// Pause halts trading. Operator only.
func (c *Client) Pause(ctx context.Context) error {
	return c.signed(ctx, http.MethodPost, "/api/admin/pause", nil, nil)
}

// Unpause resumes trading. Operator only.
func (c *Client) Unpause(ctx context.Context) error {
	return c.signed(ctx, http.MethodPost, "/api/admin/unpause", nil, nil)
}

// TriggerSettle asks the auto-settler to sweep now. Operator only.
func (c *Client) TriggerSettle(ctx context.Context) error {
	return c.signed(ctx, http.MethodPost, "/api/admin/settle", nil, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, false, out)
}

func (c *Client) signed(ctx context.Context, method, path string, body, out any) error {
	if c.signer == nil {
		return fmt.Errorf("client: %s %s: no signing key configured", method, path)
	}
	return c.do(ctx, method, path, body, true, out)
}

// do builds, optionally signs, sends, and decodes one request.
func (c *Client) do(ctx context.Context, method, path string, body any, sign bool, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if sign {
		// The server verifies against the path without the query string.
		headers, err := c.signer.SignRequest(method, req.URL.Path, payload)
		if err != nil {
			return fmt.Errorf("client: sign request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

// knownErrors are the sentinels the server reports by message.
var knownErrors = []error{
	domain.ErrInvalidPrice,
	domain.ErrNotOwner,
	domain.ErrNotApproved,
	domain.ErrAlreadyListed,
	domain.ErrInactiveListing,
	domain.ErrInsufficientPayment,
	domain.ErrLowBid,
	domain.ErrAuctionHasEnded,
	domain.ErrAuctionNotEnded,
	domain.ErrAuctionDurationZero,
	domain.ErrDurationTooLong,
	domain.ErrUnauthorized,
	domain.ErrNothingToWithdraw,
	domain.ErrNotAnAuction,
	domain.ErrPaused,
	domain.ErrAuctionHasBids,
	domain.ErrNotFound,
	domain.ErrNotHolder,
	domain.ErrInsufficientFunds,
	domain.ErrLockHeld,
	domain.ErrRateLimited,
	domain.ErrBadSignature,
}

// checkHTTPStatus maps non-2xx responses back onto domain errors so callers
// can use errors.Is.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	for _, known := range knownErrors {
		if strings.HasSuffix(msg, known.Error()) {
			return fmt.Errorf("HTTP %d: %w", statusCode, known)
		}
	}

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrBadSignature, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}
