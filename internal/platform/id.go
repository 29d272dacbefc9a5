package platform

import (
	"crypto/rand"

	"github.com/google/uuid"
)

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const passwordLength = 24

func NewID() string {
	return uuid.New().String()
}

// NewPassword generates a random password for guest database accounts
// (root enable, replication users).
func NewPassword() string {
	b := make([]byte, passwordLength)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	for i := range b {
		b[i] = passwordAlphabet[b[i]%byte(len(passwordAlphabet))]
	}
	return string(b)
}
