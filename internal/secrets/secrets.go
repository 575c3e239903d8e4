// Package secrets encrypts venue API credentials with a password-derived key,
// so only Fernet tokens and salts ever land in the config file.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	iterations = 480000
	keyLen     = 32
	saltLen    = 16
)

func deriveKey(password string, salt []byte) (*fernet.Key, error) {
	raw := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
	key, err := fernet.DecodeKey(base64.URLEncoding.EncodeToString(raw))
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext with a fresh random salt and returns the Fernet
// token together with the urlsafe-base64 salt to store alongside it.
func Encrypt(plaintext, password string) (token, salt string, err error) {
	raw := make([]byte, saltLen)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	key, err := deriveKey(password, raw)
	if err != nil {
		return "", "", err
	}
	sealed, err := fernet.EncryptAndSign([]byte(plaintext), key)
	if err != nil {
		return "", "", fmt.Errorf("encrypt secret: %w", err)
	}
	return string(sealed), base64.URLEncoding.EncodeToString(raw), nil
}

// Decrypt opens a Fernet token using the password and its stored salt.
func Decrypt(token, salt, password string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	key, err := deriveKey(password, raw)
	if err != nil {
		return "", err
	}
	plaintext := fernet.VerifyAndDecrypt([]byte(token), 0, []*fernet.Key{key})
	if plaintext == nil {
		return "", errors.New("invalid token or wrong password")
	}
	return string(plaintext), nil
}
