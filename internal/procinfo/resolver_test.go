package procinfo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLsofOutput(t *testing.T) {
	t.Run("typical listing", func(t *testing.T) {
		out := `COMMAND   PID USER   FD   TYPE DEVICE SIZE/OFF NODE NAME
node    12345 dev    23u  IPv6 123456      0t0  TCP *:3000 (LISTEN)
node    12345 dev    24u  IPv4 123457      0t0  TCP 127.0.0.1:3000 (LISTEN)
`
		info, ok := parseLsofOutput(out)
		assert.True(t, ok)
		assert.Equal(t, "node", info.Name)
		assert.Equal(t, 12345, info.PID)
	})

	t.Run("header only", func(t *testing.T) {
		out := "COMMAND   PID USER   FD   TYPE DEVICE SIZE/OFF NODE NAME\n"
		_, ok := parseLsofOutput(out)
		assert.False(t, ok)
	})

	t.Run("empty output", func(t *testing.T) {
		_, ok := parseLsofOutput("")
		assert.False(t, ok)
	})

	t.Run("garbage pid skipped", func(t *testing.T) {
		out := "node abc dev 23u IPv6 1 0t0 TCP *:3000 (LISTEN)\npython3 999 dev 3u IPv4 2 0t0 TCP *:8000 (LISTEN)\n"
		info, ok := parseLsofOutput(out)
		assert.True(t, ok)
		assert.Equal(t, "python3", info.Name)
		assert.Equal(t, 999, info.PID)
	})
}

func TestNopResolver(t *testing.T) {
	_, err := NopResolver{}.Resolve(context.Background(), 3000)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestLsofResolver_UnresolvablePort(t *testing.T) {
	// Port 1 should never have a resolvable local dev server; either lsof
	// is absent or reports nothing. Both must surface as ErrUnavailable,
	// never as a hard failure.
	r := NewLsofResolver(nil)
	_, err := r.Resolve(context.Background(), 1)
	if err != nil {
		assert.True(t, errors.Is(err, ErrUnavailable))
	}
}
