package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	in := map[string]string{"token": "abc", "refresh": "def"}
	sealed, err := Seal(in, "pw")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "abc")

	var out map[string]string
	require.NoError(t, Open(sealed, "pw", &out))
	assert.Equal(t, in, out)

	assert.ErrorIs(t, Open(sealed, "wrong", &out), ErrInvalidPassword)
	assert.ErrorIs(t, Open([]byte("{}"), "pw", &out), ErrInvalidPayload)
	assert.ErrorIs(t, Open([]byte("not json"), "pw", &out), ErrInvalidPayload)
}

func TestDecryptRejectsVersion(t *testing.T) {
	p, err := EncryptBytes([]byte("x"), "pw")
	require.NoError(t, err)
	p.Version = 7
	_, err = DecryptBytes(p, "pw")
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = DecryptBytes(nil, "pw")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
