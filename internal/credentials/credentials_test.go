package credentials

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSalt string

func (f fixedSalt) Salt(context.Context) (string, error) {
	return string(f), nil
}

func TestNew_DefaultsEnableToPassword(t *testing.T) {
	c := New("admin", "hunter2", "")
	assert.Equal(t, "hunter2", c.Enable)
}

func TestNew_PreservesExplicitEnable(t *testing.T) {
	c := New("admin", "hunter2", "enablepass")
	assert.Equal(t, "enablepass", c.Enable)
}

func TestString_RedactsSecrets(t *testing.T) {
	c := New("admin", "hunter2", "enablepass")
	rendered := c.String()
	assert.NotContains(t, rendered, "hunter2")
	assert.NotContains(t, rendered, "enablepass")
	assert.Contains(t, rendered, "admin")
	assert.True(t, strings.Contains(rendered, "<redacted>"))
}

func TestSaltedHash_Is128HexChars(t *testing.T) {
	c := New("admin", "hunter2", "")
	hash, err := c.SaltedHash(context.Background(), fixedSalt("abcdefghij"))
	require.NoError(t, err)
	assert.Len(t, hash, 128)
}

func TestSaltedHash_Deterministic(t *testing.T) {
	salt := fixedSalt("abcdefghij")
	a, err := New("admin", "hunter2", "").SaltedHash(context.Background(), salt)
	require.NoError(t, err)
	b, err := New("admin", "hunter2", "").SaltedHash(context.Background(), salt)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSaltedHash_DiffersByPassword(t *testing.T) {
	salt := fixedSalt("abcdefghij")
	a, err := New("admin", "hunter2", "").SaltedHash(context.Background(), salt)
	require.NoError(t, err)
	b, err := New("admin", "different", "").SaltedHash(context.Background(), salt)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEqual_ConstantTimeCompare(t *testing.T) {
	assert.True(t, Equal("abc", "abc"))
	assert.False(t, Equal("abc", "abd"))
	assert.False(t, Equal("abc", "abcd"))
}
