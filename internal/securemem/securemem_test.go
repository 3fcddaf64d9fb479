package securemem

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	s := NewString("session-token")
	assert.Equal(t, "session-token", s.String())
	assert.Equal(t, len("session-token"), s.Len())
	assert.True(t, s.Equal("session-token"))
	assert.False(t, s.Equal("other"))

	var seen string
	s.WithValue(func(v string) { seen = v })
	assert.Equal(t, "session-token", seen)

	s.Destroy()
	assert.Equal(t, "", s.String())
	assert.Equal(t, 0, s.Len())
	// destroying twice is harmless
	s.Destroy()
}

func TestNilString(t *testing.T) {
	var s *String
	assert.Equal(t, "", s.String())
	assert.True(t, s.Equal(""))
	s.Destroy()
}

func TestPool(t *testing.T) {
	p := NewPool()
	defer p.Clear()

	p.Set("token", "a")
	p.Set("refresh", "b")
	p.Set("token", "c")

	v, ok := p.Lookup("token")
	require.True(t, ok)
	assert.Equal(t, "c", v)
	assert.Equal(t, []string{"refresh", "token"}, p.Keys())
	assert.Equal(t, map[string]string{"token": "c", "refresh": "b"}, p.Snapshot())

	p.Delete("token")
	_, ok = p.Lookup("token")
	assert.False(t, ok)

	assert.Equal(t, "SecurePool{refresh}", fmt.Sprint(p))
}
