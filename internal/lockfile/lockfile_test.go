package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	lock := For(filepath.Join(t.TempDir(), "state", "vault.enc"))
	assert.Equal(t, "vault.enc.lock", filepath.Base(lock.Path()))

	require.NoError(t, lock.TryAcquire())
	assert.True(t, lock.Locked())
	assert.FileExists(t, lock.Path())

	require.NoError(t, lock.Release())
	assert.False(t, lock.Locked())
	assert.NoFileExists(t, lock.Path())
	require.NoError(t, lock.Release())

	require.NoError(t, lock.TryAcquire())
	require.NoError(t, lock.Release())
}

func TestSecondHolderIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.lock")

	first := New(path)
	require.NoError(t, first.TryAcquire())
	defer first.Release()

	err := New(path).TryAcquire()
	assert.ErrorIs(t, err, ErrLocked)
}

func TestStaleLocks(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"dead process", fmt.Sprintf("%d\n%s\n", 999999, time.Now().Format(time.RFC3339))},
		{"garbage", "not a pid\n"},
		{"expired", fmt.Sprintf("%d\n%s\n", os.Getpid(), time.Now().Add(-2*StaleAfter).Format(time.RFC3339))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vault.lock")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			lock := New(path)
			require.NoError(t, lock.TryAcquire())
			defer lock.Release()

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Contains(t, string(data), fmt.Sprintf("%d\n", os.Getpid()))
		})
	}
}
