package driver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRegistered(t *testing.T) {
	assert.True(t, IsRegistered("cisco_ios"))
	assert.True(t, IsRegistered("arista_eos"))
	assert.True(t, IsRegistered("juniper_junos"))
	assert.False(t, IsRegistered("not_a_real_platform"))
	assert.False(t, IsRegistered(""))
}

func TestPlatforms_IncludesEveryRegisteredValue(t *testing.T) {
	platforms := Platforms()
	assert.Contains(t, platforms, "cisco_ios")
	assert.Contains(t, platforms, "juniper_junos")
	assert.Len(t, platforms, len(registered))
}

func TestClassifyDialError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"auth failure", errors.New("ssh: handshake failed: ssh: unable to authenticate"), ErrAuthentication},
		{"timeout", errors.New("dial tcp 192.0.2.1:22: i/o timeout"), ErrTimeout},
		{"connection refused", errors.New("dial tcp 192.0.2.1:22: connect: connection refused"), ErrConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyDialError(tt.err)
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsAuthFailure(ErrAuthentication))
	assert.True(t, IsTimeout(ErrTimeout))
	assert.True(t, IsConnectionError(ErrConnection))
	assert.True(t, IsUnsupported(ErrUnsupported))
	assert.False(t, IsAuthFailure(ErrTimeout))
}
