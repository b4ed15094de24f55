package hexlicense

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// IVSize is the CBC initialization vector length.
	IVSize = aes.BlockSize
)

// Key is an AES-256 key derived from a machine fingerprint.
type Key [KeySize]byte

// DeriveKey returns SHA-256(fingerprint), used directly as the cache key.
func DeriveKey(fingerprint string) Key {
	return Key(sha256.Sum256([]byte(fingerprint)))
}

// Encrypt pads plaintext with PKCS#7 and encrypts it with AES-256-CBC under a
// fresh random IV.
func Encrypt(plaintext []byte, key Key) (iv, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}
	iv = make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return iv, ciphertext, nil
}

// Decrypt reverses Encrypt. Any malformed input, including ciphertext produced
// under a different key that yields bad padding, returns ErrDecryptFailure.
func Decrypt(iv, ciphertext []byte, key Key) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv length %d, expected %d", ErrDecryptFailure, len(iv), IVSize)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of %d",
			ErrDecryptFailure, len(ciphertext), aes.BlockSize)
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return pkcs7Unpad(plain, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	for i := 0; i < n; i++ {
		out = append(out, byte(n))
	}
	return out
}

// pkcs7Unpad checks every padding byte, not only the trailing length.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrDecryptFailure)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding length %d", ErrDecryptFailure, n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding content", ErrDecryptFailure)
		}
	}
	return data[:len(data)-n], nil
}
