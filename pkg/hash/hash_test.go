package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("Secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123", h)
	assert.True(t, CheckPassword(h, "Secret123"))
	assert.False(t, CheckPassword(h, "secret123"))
}

func TestSha256Hex(t *testing.T) {
	assert.Len(t, Sha256Hex("token"), 64)
	assert.Equal(t, Sha256Hex("token"), Sha256Hex("token"))
	assert.NotEqual(t, Sha256Hex("token"), Sha256Hex("token2"))
}
