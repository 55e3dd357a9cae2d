package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Request headers carrying the signed-request envelope.
const (
	HeaderAddress   = "X-Market-Address"
	HeaderTimestamp = "X-Market-Timestamp"
	HeaderSignature = "X-Market-Signature"
)

// RequestDigest returns the EIP-191 personal-message hash a client signs for
// one API request:
//
//	keccak256("\x19Ethereum Signed Message:\n" || len(msg) || msg)
//
// where msg is "<METHOD>\n<path>\n<unix ts>\n<hex keccak256(body)>".
func RequestDigest(method, path string, ts int64, body []byte) []byte {
	msg := fmt.Sprintf("%s\n%s\n%d\n%s", method, path, ts, hex.EncodeToString(ethcrypto.Keccak256(body)))
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return ethcrypto.Keccak256([]byte(prefix), []byte(msg))
}

// Signer signs API requests with an operator or trader key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	now     func() time.Time
}

// NewSigner wraps key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
		now:     time.Now,
	}
}

// Address returns the address derived from the key.
func (s *Signer) Address() common.Address { return s.address }

// SignRequest returns the three auth headers for a request.
func (s *Signer) SignRequest(method, path string, body []byte) (map[string]string, error) {
	return s.SignRequestAt(method, path, body, s.now().Unix())
}

// SignRequestAt is SignRequest with a caller-supplied unix timestamp.
func (s *Signer) SignRequestAt(method, path string, body []byte, ts int64) (map[string]string, error) {
	sig, err := ethcrypto.Sign(RequestDigest(method, path, ts, body), s.key)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign request: %w", err)
	}
	// go-ethereum returns v in {0,1}; wallets produce {27,28}.
	sig[64] += 27
	return map[string]string{
		HeaderAddress:   s.address.Hex(),
		HeaderTimestamp: strconv.FormatInt(ts, 10),
		HeaderSignature: "0x" + hex.EncodeToString(sig),
	}, nil
}
