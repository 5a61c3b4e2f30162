// Package crypto provides operator key management, message signing, and
// webhook authentication for the settlement engine's admin surface.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer signs admin messages with a secp256k1 key. The server recovers the
// signer address from the signature and checks it against the engine's
// operator, so the key itself never travels over the wire.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key, with
// or without the 0x prefix.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// AdminMessage builds the canonical byte string signed for an admin request:
// method, path, Unix timestamp, and the request body, newline-separated. The
// timestamp lets the server reject replayed signatures.
func AdminMessage(method, path string, unixTS int64, body []byte) []byte {
	msg := method + "\n" + path + "\n" + strconv.FormatInt(unixTS, 10) + "\n"
	return append([]byte(msg), body...)
}

// SignMessage signs a message using the Ethereum personal-sign scheme and
// returns the hex-encoded 65-byte signature.
func (s *Signer) SignMessage(msg []byte) (string, error) {
	sig, err := ethcrypto.Sign(personalHash(msg), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; wallets emit v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverSigner returns the address that produced a personal-sign signature
// over msg.
func RecoverSigner(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: decode signature: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto/signer: expected 65-byte signature, got %d bytes", len(sig))
	}

	// Normalise v back to {0,1} for recovery.
	recSig := make([]byte, 65)
	copy(recSig, sig)
	if recSig[64] >= 27 {
		recSig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(personalHash(msg), recSig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}

	return ethcrypto.PubkeyToAddress(*pub), nil
}

// personalHash applies the "\x19Ethereum Signed Message:\n" prefix before
// hashing, matching what wallet personal_sign implementations produce.
func personalHash(msg []byte) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	return ethcrypto.Keccak256([]byte(prefixed))
}
