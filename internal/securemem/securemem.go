// Package securemem keeps session secrets in memguard-protected memory so
// tokens are not readable from swap or core dumps.
package securemem

import (
	"crypto/subtle"

	"github.com/awnumar/memguard"
)

// String is a secret held in a locked buffer.
type String struct {
	buf *memguard.LockedBuffer
}

// NewString moves plaintext into protected memory.
func NewString(plaintext string) *String {
	return NewStringFromBytes([]byte(plaintext))
}

// NewStringFromBytes takes ownership of data; memguard wipes the slice.
func NewStringFromBytes(data []byte) *String {
	return &String{buf: memguard.NewBufferFromBytes(data)}
}

func (s *String) alive() bool {
	return s != nil && s.buf != nil && s.buf.IsAlive()
}

// String returns a plaintext copy in regular memory.
func (s *String) String() string {
	if !s.alive() {
		return ""
	}
	return string(s.buf.Bytes())
}

// Len returns the secret's length.
func (s *String) Len() int {
	if !s.alive() {
		return 0
	}
	return s.buf.Size()
}

// Equal compares against plaintext in constant time.
func (s *String) Equal(other string) bool {
	if !s.alive() {
		return other == ""
	}
	return subtle.ConstantTimeCompare(s.buf.Bytes(), []byte(other)) == 1
}

// WithValue passes the plaintext to fn without keeping a copy around.
func (s *String) WithValue(fn func(string)) {
	if !s.alive() {
		return
	}
	fn(string(s.buf.Bytes()))
}

// Destroy wipes the secret. Further reads return "".
func (s *String) Destroy() {
	if s == nil || s.buf == nil {
		return
	}
	s.buf.Destroy()
	s.buf = nil
}

// Init installs memguard's interrupt handler, which wipes every locked
// buffer before the process exits on SIGINT.
func Init() {
	memguard.CatchInterrupt()
}

// Purge wipes all protected memory of the process.
func Purge() {
	memguard.Purge()
}
