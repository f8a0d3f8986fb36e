package utils

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GeneratePassword returns a random root password that satisfies the
// common provider complexity rules (mixed case and digits, no
// ambiguous characters). Callers regenerate on weak-password
// rejections rather than reusing the same string.
func GeneratePassword(length int) string {
	if length < 12 {
		length = 12
	}
	var sb strings.Builder
	for i := 0; i < length; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordAlphabet))))
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken
			panic(err)
		}
		sb.WriteByte(passwordAlphabet[idx.Int64()])
	}
	return sb.String()
}

// MaskSecret hides all but the last few characters of a credential for
// API responses and logs.
func MaskSecret(secret string, visible int) string {
	if secret == "" {
		return ""
	}
	if visible <= 0 || len(secret) <= visible {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-visible) + secret[len(secret)-visible:]
}
