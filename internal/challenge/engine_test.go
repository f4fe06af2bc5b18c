package challenge_test

import (
	"crypto/aes"
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OneCard-OSS/OneCard/internal/challenge"
	"github.com/OneCard-OSS/OneCard/internal/domain"
)

// deviceRespond plays the card side of the handshake: derive the shared
// secret from the server's public key and encrypt the nonce back.
func deviceRespond(t *testing.T, payload []byte) (devicePub, ciphertext []byte) {
	t.Helper()

	curve := ecdh.P256()
	deviceKey, err := curve.GenerateKey(rand.Reader)
	require.NoError(t, err)

	serverPub, err := curve.NewPublicKey(payload[:len(payload)-challenge.NonceSize])
	require.NoError(t, err)
	nonce := payload[len(payload)-challenge.NonceSize:]

	secret, err := deviceKey.ECDH(serverPub)
	require.NoError(t, err)

	return deviceKey.PublicKey().Bytes(), encryptECB(t, secret[:16], nonce)
}

func encryptECB(t *testing.T, key, plaintext []byte) []byte {
	t.Helper()

	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte{}, plaintext...), make([]byte, pad)...)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return out
}

func TestBeginProducesPayloadAndKeyMaterial(t *testing.T) {
	engine := challenge.NewEngine()

	ch, err := engine.Begin()
	require.NoError(t, err)
	require.Len(t, ch.Nonce, challenge.NonceSize)
	// 65-byte uncompressed P-256 point followed by the nonce.
	require.Len(t, ch.Payload, 65+challenge.NonceSize)
	require.Equal(t, ch.Nonce, ch.Payload[65:])
	require.Len(t, ch.PrivateKey, 32)

	again, err := engine.Begin()
	require.NoError(t, err)
	require.NotEqual(t, ch.Nonce, again.Nonce)
	require.NotEqual(t, ch.PrivateKey, again.PrivateKey)
}

func TestVerifyRoundTrip(t *testing.T) {
	engine := challenge.NewEngine()

	ch, err := engine.Begin()
	require.NoError(t, err)

	devicePub, ciphertext := deviceRespond(t, ch.Payload)

	ok, err := engine.Verify(ch.PrivateKey, devicePub, ciphertext, ch.Nonce)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsEverySingleBitFlip(t *testing.T) {
	engine := challenge.NewEngine()

	ch, err := engine.Begin()
	require.NoError(t, err)

	devicePub, ciphertext := deviceRespond(t, ch.Payload)

	for i := range ciphertext {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte{}, ciphertext...)
			mutated[i] ^= 1 << bit

			ok, err := engine.Verify(ch.PrivateKey, devicePub, mutated, ch.Nonce)
			if err != nil {
				require.ErrorIs(t, err, domain.ErrDecryptionFailed)
			}
			require.False(t, ok, "flipped bit %d of byte %d must not verify", bit, i)
		}
	}
}

func TestVerifyComparesTheWholeNonce(t *testing.T) {
	engine := challenge.NewEngine()

	ch, err := engine.Begin()
	require.NoError(t, err)

	// A response that matches everywhere except the leading bytes must fail:
	// the comparison covers the full nonce, not a sub-range.
	curve := ecdh.P256()
	deviceKey, err := curve.GenerateKey(rand.Reader)
	require.NoError(t, err)
	serverPub, err := curve.NewPublicKey(ch.Payload[:65])
	require.NoError(t, err)
	secret, err := deviceKey.ECDH(serverPub)
	require.NoError(t, err)

	wrong := append([]byte{}, ch.Nonce...)
	wrong[0] ^= 0xFF
	ciphertext := encryptECB(t, secret[:16], wrong)

	ok, err := engine.Verify(ch.PrivateKey, deviceKey.PublicKey().Bytes(), ciphertext, ch.Nonce)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyRejectsMalformedInputsGenerically(t *testing.T) {
	engine := challenge.NewEngine()

	ch, err := engine.Begin()
	require.NoError(t, err)

	devicePub, ciphertext := deviceRespond(t, ch.Payload)

	cases := map[string]struct {
		priv, pub, ct []byte
	}{
		"bad private key":      {[]byte{1, 2, 3}, devicePub, ciphertext},
		"bad curve point":      {ch.PrivateKey, []byte{0x04, 0xFF}, ciphertext},
		"truncated ciphertext": {ch.PrivateKey, devicePub, ciphertext[:5]},
		"empty ciphertext":     {ch.PrivateKey, devicePub, nil},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ok, err := engine.Verify(tc.priv, tc.pub, tc.ct, ch.Nonce)
			require.ErrorIs(t, err, domain.ErrDecryptionFailed)
			require.False(t, ok)
		})
	}
}
