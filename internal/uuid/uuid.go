// Package uuid provides id generation for entities, devices and user codes.
package uuid

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// UserCodeLength is the length of the sync user code.
const UserCodeLength = 6

const userCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
	uuidV4Regex   = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)
	userCodeRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

// New generates a new UUID v4 string.
func New() string {
	return uuid.New().String()
}

// NewDeviceID generates a persistent device identifier.
func NewDeviceID() string {
	return "dev-" + uuid.New().String()
}

// IsValid checks if a string is a valid UUID v4.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// NewUserCode generates a random 6-character A-Z0-9 sync code.
func NewUserCode() (string, error) {
	max := big.NewInt(int64(len(userCodeAlphabet)))
	var b strings.Builder
	for i := 0; i < UserCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate user code: %w", err)
		}
		b.WriteByte(userCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// ParseUserCode normalizes input to upper case and checks the code format.
func ParseUserCode(s string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if !userCodeRegex.MatchString(code) {
		return "", fmt.Errorf("invalid user code %q: want %d characters A-Z or 0-9", s, UserCodeLength)
	}
	return code, nil
}
