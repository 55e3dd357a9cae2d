package crypto

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// Verifier checks signed requests and returns the signer address.
type Verifier struct {
	ttl    time.Duration
	replay *ReplayCache
	now    func() time.Time
}

// NewVerifier accepts timestamps within ttl of the server clock in either
// direction and rejects a signature seen twice within twice that window.
func NewVerifier(ttl time.Duration) *Verifier {
	return &Verifier{ttl: ttl, replay: NewReplayCache(2 * ttl), now: time.Now}
}

// WithClock replaces the clock. Used by tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Cleanup evicts expired replay entries.
func (v *Verifier) Cleanup() { v.replay.Cleanup(v.now()) }

// Verify checks the envelope of a request and returns the recovered caller.
// Every failure wraps domain.ErrBadSignature.
func (v *Verifier) Verify(method, path string, body []byte, address, timestamp, signature string) (domain.Address, error) {
	if !common.IsHexAddress(address) {
		return domain.ZeroAddress, fmt.Errorf("%w: malformed address", domain.ErrBadSignature)
	}
	claimed := common.HexToAddress(address)

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domain.ZeroAddress, fmt.Errorf("%w: malformed timestamp", domain.ErrBadSignature)
	}
	now := v.now()
	skew := now.Sub(time.Unix(ts, 0))
	if skew > v.ttl || skew < -v.ttl {
		return domain.ZeroAddress, fmt.Errorf("%w: timestamp outside %s window", domain.ErrBadSignature, v.ttl)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != 65 {
		return domain.ZeroAddress, fmt.Errorf("%w: malformed signature", domain.ErrBadSignature)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	r, sv := new(big.Int).SetBytes(sig[:32]), new(big.Int).SetBytes(sig[32:64])
	if !ethcrypto.ValidateSignatureValues(sig[64], r, sv, true) {
		return domain.ZeroAddress, fmt.Errorf("%w: non-canonical signature", domain.ErrBadSignature)
	}
	digest := RequestDigest(method, path, ts, body)
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return domain.ZeroAddress, fmt.Errorf("%w: %v", domain.ErrBadSignature, err)
	}
	if ethcrypto.PubkeyToAddress(*pub) != claimed {
		return domain.ZeroAddress, fmt.Errorf("%w: signer does not match %s", domain.ErrBadSignature, claimed.Hex())
	}

	// Keyed on what was signed, so re-encodings of one signature collide.
	key := claimed.Hex() + ":" + hex.EncodeToString(digest)
	if v.replay.Seen(key, now) {
		return domain.ZeroAddress, fmt.Errorf("%w: replayed request", domain.ErrBadSignature)
	}
	return claimed, nil
}
