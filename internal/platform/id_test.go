package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID_Unique(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestNewPassword_LengthAndCharset(t *testing.T) {
	p := NewPassword()
	assert.Len(t, p, passwordLength)
	for _, c := range p {
		assert.Contains(t, passwordAlphabet, string(c))
	}
}

func TestInstanceHostname(t *testing.T) {
	assert.Equal(t, "abc.db.example.com", InstanceHostname("abc", "db.example.com"))
	assert.Equal(t, "abc.db.example.com", InstanceHostname("abc", ".db.example.com"))
}
