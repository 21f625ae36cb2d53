package provider

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// MinPasswordLength is the minimum length for generated credentials.
const MinPasswordLength = 12

// Character classes for generated passwords. Every generated password
// contains at least one character from each class.
const (
	passwordUppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	passwordLowercase = "abcdefghijklmnopqrstuvwxyz"
	passwordDigits    = "0123456789"
	passwordSymbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// GeneratePassword produces a random credential of the given length
// meeting the complexity policy: length >= 12 with at least one
// uppercase, lowercase, digit, and symbol character. All randomness,
// including the final shuffle, comes from crypto/rand.
func GeneratePassword(length int) (string, error) {
	if length < MinPasswordLength {
		return "", fmt.Errorf("password length %d below minimum %d", length, MinPasswordLength)
	}

	all := passwordUppercase + passwordLowercase + passwordDigits + passwordSymbols
	buf := make([]byte, 0, length)

	// One from each class guarantees the policy before the fill.
	for _, class := range []string{passwordUppercase, passwordLowercase, passwordDigits, passwordSymbols} {
		c, err := randomByte(class)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	for len(buf) < length {
		c, err := randomByte(all)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	// Fisher-Yates with crypto/rand so the class-guaranteed characters
	// don't sit at predictable positions.
	for i := len(buf) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}

	return string(buf), nil
}

// randomByte picks one byte from the given alphabet.
func randomByte(alphabet string) (byte, error) {
	i, err := randomIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

// randomIndex returns a uniform random int in [0, n).
func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return int(v.Int64()), nil
}
