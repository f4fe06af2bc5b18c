package challenge

import (
	"crypto/aes"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/subtle"

	"github.com/OneCard-OSS/OneCard/internal/domain"
)

// NonceSize is the length of the random challenge included in every attempt.
const NonceSize = 16

// sharedKeySize is the AES-128 key taken as a prefix of the ECDH shared secret.
const sharedKeySize = 16

// Challenge is the material produced for one login attempt. Payload is what
// gets pushed to the device; PrivateKey and Nonce are persisted with the
// attempt for later verification.
type Challenge struct {
	// Payload is the server's ephemeral public key in uncompressed X9.62
	// encoding, concatenated with the nonce.
	Payload    []byte
	Nonce      []byte
	PrivateKey []byte
}

// Engine generates and verifies ECDH challenge-response handshakes on P-256.
// It is stateless; all persistence belongs to the attempt state machine.
type Engine struct {
	curve ecdh.Curve
}

// NewEngine returns an Engine on the NIST P-256 curve.
func NewEngine() *Engine {
	return &Engine{curve: ecdh.P256()}
}

// Begin generates a fresh ephemeral keypair and nonce for a login attempt.
func (e *Engine) Begin() (Challenge, error) {
	key, err := e.curve.GenerateKey(rand.Reader)
	if err != nil {
		return Challenge{}, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Challenge{}, err
	}

	pub := key.PublicKey().Bytes()
	payload := make([]byte, 0, len(pub)+NonceSize)
	payload = append(payload, pub...)
	payload = append(payload, nonce...)

	return Challenge{
		Payload:    payload,
		Nonce:      nonce,
		PrivateKey: key.Bytes(),
	}, nil
}

// Verify re-derives the ephemeral private key, computes the ECDH shared
// secret with the device's public key, decrypts the response and compares it
// against the full expected nonce.
//
// Every cryptographic failure collapses into domain.ErrDecryptionFailed so
// the caller cannot be used as an oracle for which step rejected the input.
// A clean decryption that does not match the nonce returns (false, nil).
func (e *Engine) Verify(privateKey, devicePublicKey, ciphertext, expectedNonce []byte) (bool, error) {
	priv, err := e.curve.NewPrivateKey(privateKey)
	if err != nil {
		return false, domain.ErrDecryptionFailed
	}
	peer, err := e.curve.NewPublicKey(devicePublicKey)
	if err != nil {
		return false, domain.ErrDecryptionFailed
	}

	secret, err := priv.ECDH(peer)
	if err != nil {
		return false, domain.ErrDecryptionFailed
	}

	plaintext, err := decryptECB(secret[:sharedKeySize], ciphertext)
	if err != nil {
		return false, domain.ErrDecryptionFailed
	}

	if len(plaintext) != len(expectedNonce) {
		return false, nil
	}
	return subtle.ConstantTimeCompare(plaintext, expectedNonce) == 1, nil
}

// decryptECB decrypts AES-ECB and strips PKCS#7 padding. The card applet
// speaks this mode; see the protocol notes in DESIGN.md for the security
// caveats of deterministic encryption here.
func decryptECB(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, domain.ErrDecryptionFailed
	}

	plaintext := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		block.Decrypt(plaintext[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}

	return stripPKCS7(plaintext)
}

func stripPKCS7(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, domain.ErrDecryptionFailed
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, domain.ErrDecryptionFailed
		}
	}
	return data[:len(data)-n], nil
}
