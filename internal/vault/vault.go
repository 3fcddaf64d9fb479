// Package vault stores the session token and auth secrets between runs.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/codefionn/webmessaging/internal/lockfile"
	"github.com/codefionn/webmessaging/internal/logger"
	"github.com/codefionn/webmessaging/internal/secrets"
	"github.com/codefionn/webmessaging/internal/securemem"
)

// Well-known keys.
const (
	KeyToken            = "token"
	KeyRefreshToken     = "auth_refresh_token"
	KeyWasAuthenticated = "was_authenticated"
)

// Vault is a small key-value store for secrets.
type Vault interface {
	Fetch(key string) (string, bool)
	Store(key, value string) error
	Remove(key string) error
}

// Memory keeps values in protected memory for the life of the process.
type Memory struct {
	pool *securemem.Pool
}

func NewMemory() *Memory {
	return &Memory{pool: securemem.NewPool()}
}

func (m *Memory) Fetch(key string) (string, bool) {
	return m.pool.Lookup(key)
}

func (m *Memory) Store(key, value string) error {
	m.pool.Set(key, value)
	return nil
}

func (m *Memory) Remove(key string) error {
	m.pool.Delete(key)
	return nil
}

// Wipe destroys every value.
func (m *Memory) Wipe() {
	m.pool.Clear()
}

// File persists values encrypted with a password. Values are also held in
// protected memory while the process runs. One process at a time may hold
// a File for a path.
type File struct {
	path     string
	lock     *lockfile.Lockfile
	password *securemem.String
	mem      *Memory
	mu       sync.Mutex
	log      *logger.Logger
}

// OpenFile loads the vault at path, or starts an empty one when the file
// does not exist yet.
func OpenFile(path, password string) (*File, error) {
	f := &File{
		path:     path,
		password: securemem.NewString(password),
		lock:     lockfile.For(path),
		mem:      NewMemory(),
		log:      logger.Global().WithPrefix("vault"),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read vault %s: %w", path, err)
	default:
		var values map[string]string
		if err := secrets.Open(data, f.password.String(), &values); err != nil {
			f.password.Destroy()
			return nil, fmt.Errorf("open vault %s: %w", path, err)
		}
		for k, v := range values {
			f.mem.pool.Set(k, v)
		}
		f.log.Debug("loaded %d entries", len(values))
	}

	if err := f.lock.TryAcquire(); err != nil {
		f.Close()
		return nil, fmt.Errorf("open vault %s: %w", path, err)
	}
	return f, nil
}

func (f *File) Fetch(key string) (string, bool) {
	return f.mem.Fetch(key)
}

func (f *File) Store(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mem.pool.Set(key, value)
	return f.flush()
}

func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.mem.pool.Delete(key)
	return f.flush()
}

// Close wipes the in-memory copy and releases the vault for other
// processes.
func (f *File) Close() {
	f.mem.Wipe()
	f.password.Destroy()
	if err := f.lock.Release(); err != nil {
		f.log.Warn("release vault lock: %v", err)
	}
}

// flush writes the whole vault through a temp file and rename.
func (f *File) flush() error {
	sealed, err := secrets.Seal(f.mem.pool.Snapshot(), f.password.String())
	if err != nil {
		return fmt.Errorf("seal vault: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".vault-*")
	if err != nil {
		return fmt.Errorf("create temp vault: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("write vault: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write vault: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace vault: %w", err)
	}
	return nil
}

var (
	_ Vault = (*Memory)(nil)
	_ Vault = (*File)(nil)
)
