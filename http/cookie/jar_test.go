package cookie

import (
	"testing"
	"time"

	"github.com/bifrost-web/bifrost/kv"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("single pair", func(t *testing.T) {
		jar := kv.New()
		require.NoError(t, Parse(jar, "a=b"))
		require.Equal(t, "b", jar.Value("a"))
		require.NoError(t, Parse(jar.Clear(), "a=b;"))
		require.Equal(t, "b", jar.Value("a"))
		require.NoError(t, Parse(jar.Clear(), "a=b; "))
		require.Equal(t, "b", jar.Value("a"))
	})

	t.Run("multiple pairs", func(t *testing.T) {
		jar := kv.New()
		require.NoError(t, Parse(jar, "hello=world; men=in black"))
		require.Equal(t, "world", jar.Value("hello"))
		require.Equal(t, "in black", jar.Value("men"))
	})

	t.Run("empty key", func(t *testing.T) {
		require.Error(t, Parse(kv.New(), "=b"))
	})
}

func TestString(t *testing.T) {
	t.Run("bare pair", func(t *testing.T) {
		require.Equal(t, "session=abc", New("session", "abc").String())
	})

	t.Run("all attributes", func(t *testing.T) {
		c := Build("session", "abc").
			Path("/").
			Domain("example.com").
			Expires(time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)).
			MaxAge(3600).
			SameSite(SameSiteLax).
			Secure(true).
			HttpOnly(true).
			Cookie()

		require.Equal(
			t,
			"session=abc; Path=/; Domain=example.com; Expires=Thu, 15 Jan 2026 12:00:00 GMT; "+
				"Max-Age=3600; SameSite=Lax; Secure; HttpOnly",
			c.String(),
		)
	})

	t.Run("negative max-age renders as zero", func(t *testing.T) {
		require.Equal(t, "gone=; Max-Age=0", Build("gone", "").MaxAge(-1).Cookie().String())
	})
}
