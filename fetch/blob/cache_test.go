package blob

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *DiskCache {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestOpenNotDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o666))
	if _, err := Open(file); err == nil {
		t.Fatal("erwartet Fehler fuer Datei statt Verzeichnis")
	}
	if _, err := Open(""); err == nil {
		t.Fatal("erwartet Fehler fuer leeren Namen")
	}
}

func TestPutGet(t *testing.T) {
	c := openTest(t)
	data := "weights"
	d := Sum([]byte(data))

	require.NoError(t, PutBytes(c, d, data))
	e, err := c.Get(d)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), e.Size)
	require.Equal(t, d, e.Digest)
	require.True(t, e.Time.Equal(c.now()))

	got, err := os.ReadFile(c.GetFile(d))
	require.NoError(t, err)
	require.Equal(t, data, string(got))
}

func TestPutDigestMismatch(t *testing.T) {
	c := openTest(t)
	d := Sum([]byte("expected"))

	err := PutBytes(c, d, "actual!!")
	require.Error(t, err)
	if _, err := c.Get(d); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("nach fehlgeschlagenem Put: erwartet ErrNotExist, bekommen %v", err)
	}
}

func TestImport(t *testing.T) {
	c := openTest(t)

	d, err := c.Import(strings.NewReader("graph"), -1)
	require.NoError(t, err)
	require.Equal(t, Sum([]byte("graph")), d)

	_, err = c.Import(strings.NewReader("graph"), 3)
	require.Error(t, err)

	empty, err := c.Import(strings.NewReader(""), 0)
	require.NoError(t, err)
	e, err := c.Get(empty)
	require.NoError(t, err)
	require.Zero(t, e.Size)
}

func TestLinkResolve(t *testing.T) {
	c := openTest(t)
	const url = "https://example.com/model/weight_fallback.bin"

	if _, err := c.Resolve(url); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("erwartet ErrNotExist, bekommen %v", err)
	}

	missing := Sum([]byte("missing"))
	if err := c.Link(url, missing); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Link auf fehlenden Blob: erwartet ErrNotExist, bekommen %v", err)
	}

	d, err := c.Import(strings.NewReader("blob"), 4)
	require.NoError(t, err)
	require.NoError(t, c.Link(url, d))
	require.NoError(t, c.Link("https://example.com/a", d))

	got, err := c.Resolve(url)
	require.NoError(t, err)
	require.Equal(t, d, got)

	var links []string
	for l, err := range c.Links() {
		require.NoError(t, err)
		links = append(links, l)
	}
	require.Equal(t, []string{"https://example.com/a", url}, links)

	ok, err := c.Unlink(url)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = c.Unlink(url)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParseDigest(t *testing.T) {
	d := Sum([]byte("x"))
	for _, s := range []string{d.String(), strings.Replace(d.String(), "-", ":", 1)} {
		got, err := ParseDigest(s)
		require.NoError(t, err)
		require.Equal(t, d, got)
	}
	for _, s := range []string{"", "sha256-zz", "md5-00", "sha256-" + strings.Repeat("0", 10)} {
		if _, err := ParseDigest(s); err == nil {
			t.Errorf("%q: erwartet Fehler", s)
		}
	}
	require.False(t, Digest{}.IsValid())
	require.True(t, d.IsValid())
}
