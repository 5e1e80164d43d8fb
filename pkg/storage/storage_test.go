package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("https://cdn.example.com/")

	url, err := s.Put(ctx, "chapters/1/3/100-01.jpg", []byte("page"), ContentType("01.jpg"))
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/chapters/1/3/100-01.jpg", url)

	key, ok := s.KeyFromURL(url)
	require.True(t, ok)
	require.Equal(t, "chapters/1/3/100-01.jpg", key)

	require.NoError(t, s.DeleteMany(ctx, []string{key, "never/written.png"}))
	_, ok = s.Get(key)
	require.False(t, ok)
}

func TestKeysFromURLsSkipsForeign(t *testing.T) {
	s := NewMemoryStore("https://cdn.example.com")
	keys := KeysFromURLs(s, "https://cdn.example.com/covers/a.png", "", "https://elsewhere.net/b.png")
	require.Equal(t, []string{"covers/a.png"}, keys)
}

func TestContentType(t *testing.T) {
	require.Equal(t, "image/jpeg", ContentType("PAGE.JPG"))
	require.Equal(t, "image/webp", ContentType("a.webp"))
	require.Equal(t, "application/zip", ContentType("edit.zip"))
	require.Equal(t, "application/octet-stream", ContentType("noext"))
}

func TestTimestampedKey(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	require.Equal(t, "covers/my-work/1700000000123-capa-01.png", TimestampedKey("covers/my-work/", at, "capa 01.png"))
	require.Equal(t, "x/1700000000123-evil.jpg", TimestampedKey("x", at, "../../evil.jpg"))
}
