package crypto

import (
	"encoding/hex"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	require.NoError(t, err)

	pk, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	want, _ := ethcrypto.HexToECDSA(testKey)
	assert.Equal(t, ethcrypto.PubkeyToAddress(want.PublicKey), ethcrypto.PubkeyToAddress(pk.PublicKey))

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)
}

func TestLoadKeyFromFile(t *testing.T) {
	blob, err := EncryptKey(testKey, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "operator.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	pk, err := LoadKey(KeySource{KeyFile: path, Password: "pw"})
	require.NoError(t, err)
	assert.NotNil(t, pk)

	_, err = LoadKey(KeySource{})
	require.Error(t, err)
}

func newTestPair(t *testing.T, now time.Time) (*Signer, *Verifier) {
	t.Helper()
	pk, err := ethcrypto.HexToECDSA(testKey)
	require.NoError(t, err)
	s := NewSigner(pk)
	s.now = func() time.Time { return now }
	v := NewVerifier(time.Minute).WithClock(func() time.Time { return now })
	return s, v
}

func TestVerifyRecoversSigner(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s, v := newTestPair(t, now)
	body := []byte(`{"asset_id":1,"price":100}`)

	h, err := s.SignRequest("POST", "/api/listings", body)
	require.NoError(t, err)

	addr, err := v.Verify("POST", "/api/listings", body, h[HeaderAddress], h[HeaderTimestamp], h[HeaderSignature])
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)
}

func TestVerifyRejectsTampering(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s, v := newTestPair(t, now)
	h, err := s.SignRequest("POST", "/api/listings", []byte(`{"price":100}`))
	require.NoError(t, err)

	_, err = v.Verify("POST", "/api/listings", []byte(`{"price":1}`), h[HeaderAddress], h[HeaderTimestamp], h[HeaderSignature])
	assert.ErrorIs(t, err, domain.ErrBadSignature)

	_, err = v.Verify("DELETE", "/api/listings", []byte(`{"price":100}`), h[HeaderAddress], h[HeaderTimestamp], h[HeaderSignature])
	assert.ErrorIs(t, err, domain.ErrBadSignature)
}

func TestVerifyRejectsReplayAndStaleTimestamps(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s, v := newTestPair(t, now)

	h, err := s.SignRequest("POST", "/api/escrow/withdraw", nil)
	require.NoError(t, err)
	_, err = v.Verify("POST", "/api/escrow/withdraw", nil, h[HeaderAddress], h[HeaderTimestamp], h[HeaderSignature])
	require.NoError(t, err)
	_, err = v.Verify("POST", "/api/escrow/withdraw", nil, h[HeaderAddress], h[HeaderTimestamp], h[HeaderSignature])
	assert.ErrorIs(t, err, domain.ErrBadSignature)

	// Re-encodings of an accepted signature are replays too.
	raw, err := hex.DecodeString(strings.TrimPrefix(h[HeaderSignature], "0x"))
	require.NoError(t, err)
	lowV := append([]byte(nil), raw...)
	lowV[64] -= 27
	for name, sig := range map[string]string{
		"without prefix":  hex.EncodeToString(raw),
		"upper case":      "0x" + strings.ToUpper(hex.EncodeToString(raw)),
		"recovery id 0/1": "0x" + hex.EncodeToString(lowV),
		"high s":          "0x" + hex.EncodeToString(highS(raw)),
	} {
		_, err = v.Verify("POST", "/api/escrow/withdraw", nil, h[HeaderAddress], h[HeaderTimestamp], sig)
		assert.ErrorIs(t, err, domain.ErrBadSignature, name)
	}

	old, err := s.SignRequestAt("POST", "/api/escrow/withdraw", nil, now.Add(-2*time.Minute).Unix())
	require.NoError(t, err)
	_, err = v.Verify("POST", "/api/escrow/withdraw", nil, old[HeaderAddress], old[HeaderTimestamp], old[HeaderSignature])
	assert.ErrorIs(t, err, domain.ErrBadSignature)
}

func TestVerifyRejectsHighS(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s, v := newTestPair(t, now)
	h, err := s.SignRequest("POST", "/api/listings/7/buy", []byte(`{"paid":100}`))
	require.NoError(t, err)
	raw, err := hex.DecodeString(strings.TrimPrefix(h[HeaderSignature], "0x"))
	require.NoError(t, err)

	_, err = v.Verify("POST", "/api/listings/7/buy", []byte(`{"paid":100}`), h[HeaderAddress], h[HeaderTimestamp], "0x"+hex.EncodeToString(highS(raw)))
	require.ErrorIs(t, err, domain.ErrBadSignature)
	assert.Contains(t, err.Error(), "non-canonical")

	// The canonical form is still accepted afterwards.
	_, err = v.Verify("POST", "/api/listings/7/buy", []byte(`{"paid":100}`), h[HeaderAddress], h[HeaderTimestamp], h[HeaderSignature])
	require.NoError(t, err)
}

// highS returns the other valid signature for the same key and digest:
// s' = N - s with the recovery id flipped.
func highS(sig []byte) []byte {
	out := append([]byte(nil), sig...)
	n := ethcrypto.S256().Params().N
	s := new(big.Int).Sub(n, new(big.Int).SetBytes(sig[32:64]))
	s.FillBytes(out[32:64])
	if out[64] >= 27 {
		out[64] = 55 - out[64]
	} else {
		out[64] = 1 - out[64]
	}
	return out
}

func TestReplayCacheCleanup(t *testing.T) {
	c := NewReplayCache(time.Second)
	t0 := time.Unix(0, 0)
	assert.False(t, c.Seen("a", t0))
	assert.True(t, c.Seen("a", t0.Add(500*time.Millisecond)))
	c.Cleanup(t0.Add(2 * time.Second))
	assert.Equal(t, 0, c.Len())
}
