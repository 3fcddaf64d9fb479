package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codefionn/webmessaging/internal/lockfile"
	"github.com/codefionn/webmessaging/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	m := NewMemory()
	defer m.Wipe()

	_, ok := m.Fetch(KeyToken)
	assert.False(t, ok)

	require.NoError(t, m.Store(KeyToken, "t-1"))
	v, ok := m.Fetch(KeyToken)
	require.True(t, ok)
	assert.Equal(t, "t-1", v)

	require.NoError(t, m.Remove(KeyToken))
	_, ok = m.Fetch(KeyToken)
	assert.False(t, ok)
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "vault.enc")

	f, err := OpenFile(path, "pw")
	require.NoError(t, err)
	require.NoError(t, f.Store(KeyToken, "t-1"))
	require.NoError(t, f.Store(KeyRefreshToken, "r-1"))
	require.NoError(t, f.Remove(KeyRefreshToken))
	f.Close()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "t-1")

	reopened, err := OpenFile(path, "pw")
	require.NoError(t, err)
	defer reopened.Close()

	v, ok := reopened.Fetch(KeyToken)
	require.True(t, ok)
	assert.Equal(t, "t-1", v)
	_, ok = reopened.Fetch(KeyRefreshToken)
	assert.False(t, ok)

	_, err = OpenFile(path, "wrong")
	assert.ErrorIs(t, err, secrets.ErrInvalidPassword)
}

func TestFileIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.enc")

	f, err := OpenFile(path, "pw")
	require.NoError(t, err)
	require.NoError(t, f.Store(KeyToken, "t-1"))

	_, err = OpenFile(path, "pw")
	require.ErrorIs(t, err, lockfile.ErrLocked)

	f.Close()
	again, err := OpenFile(path, "pw")
	require.NoError(t, err)
	again.Close()
}
