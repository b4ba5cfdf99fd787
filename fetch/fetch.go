// Package fetch laedt Descriptoren und Gewichtsdaten aus Dateien oder per HTTP.
//
// MODUL: fetch
// ZWECK: Fetch-Kollaborator mit URL-Transformation, Cache und Fortschrittsanzeige
// INPUT: URLs (http, https, file oder lokaler Pfad)
// OUTPUT: Response mit Body und Content-Length
// NEBENEFFEKTE: Netzwerkzugriffe, Schreibzugriffe im Download-Cache
// ABHAENGIGKEITEN: fetch/blob, envconfig, fault
// HINWEISE: Alle Fehler sind fault.ErrTransport, Aufrufe respektieren ctx und
//           envconfig.FetchTimeout()
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/7blacky7/graphrt/envconfig"
	"github.com/7blacky7/graphrt/fault"
	"github.com/7blacky7/graphrt/fetch/blob"
)

// Response ist eine geoeffnete Antwort. Body muss geschlossen werden.
type Response struct {
	URL  string
	Body io.ReadCloser

	// ContentLength ist -1, wenn die Laenge unbekannt ist
	ContentLength int64

	FromCache bool
}

// Fetcher oeffnet eine URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Options konfigurieren einen Client.
type Options struct {
	// Transform wird auf jede URL vor dem Abruf angewendet
	Transform func(string) string

	// IgnoreCache haengt einen Cache-Buster an und umgeht den Disk-Cache
	IgnoreCache bool

	// Cache speichert HTTP-Antworten; nil deaktiviert den Cache
	Cache *blob.DiskCache

	HTTPClient *http.Client

	now func() time.Time
}

// Client ist der Standard-Fetcher fuer Dateien und HTTP(S).
type Client struct {
	opts Options
}

// New erstellt einen Client.
func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return &Client{opts: opts}
}

// Default erstellt einen Client mit dem Cache aus envconfig.CacheDir().
// Mit GRAPHRT_NOCACHE wird ohne Cache gearbeitet.
func Default() (*Client, error) {
	opts := Options{IgnoreCache: envconfig.NoCache()}
	if !opts.IgnoreCache {
		c, err := blob.Open(envconfig.CacheDir())
		if err != nil {
			return nil, fmt.Errorf("open download cache: %w", err)
		}
		opts.Cache = c
	}
	return New(opts), nil
}

// TransformURL wendet die konfigurierte URL-Transformation an.
func (c *Client) TransformURL(u string) string {
	if c.opts.Transform == nil {
		return u
	}
	return c.opts.Transform(u)
}

// Fetch oeffnet u. Lokale Pfade und file:// werden direkt gelesen,
// http(s) ueber den Cache oder das Netzwerk.
func (c *Client) Fetch(ctx context.Context, u string) (*Response, error) {
	u = c.TransformURL(u)

	switch {
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return c.fetchHTTP(ctx, u)
	default:
		return openFile(u)
	}
}

func openFile(u string) (*Response, error) {
	path := u
	if strings.HasPrefix(u, "file://") {
		parsed, err := url.Parse(u)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", fault.ErrTransport, err)
		}
		path = parsed.Path
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrTransport, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", fault.ErrTransport, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", fault.ErrTransport, path)
	}
	return &Response{URL: u, Body: f, ContentLength: info.Size()}, nil
}

func (c *Client) fetchHTTP(ctx context.Context, u string) (*Response, error) {
	if c.opts.IgnoreCache {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "t=" + strconv.FormatInt(c.opts.now().UnixNano(), 10)
	} else if resp, err := c.fromCache(u); err == nil {
		return resp, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("download cache unreadable, fetching", "url", u, "error", err)
	}

	ctx, cancel := context.WithTimeout(ctx, envconfig.FetchTimeout())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", fault.ErrTransport, err)
	}

	start := time.Now()
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", fault.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: GET %s: %s", fault.ErrTransport, u, resp.Status)
	}
	slog.Debug("fetch", "url", u, "status", resp.StatusCode, "length", resp.ContentLength, "duration", time.Since(start))

	var body io.ReadCloser = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	if c.opts.Cache != nil && !c.opts.IgnoreCache {
		body = newCachingBody(body, c.opts.Cache, u, resp.ContentLength)
	}
	return &Response{URL: u, Body: body, ContentLength: resp.ContentLength}, nil
}

func (c *Client) fromCache(u string) (*Response, error) {
	if c.opts.Cache == nil {
		return nil, fs.ErrNotExist
	}
	d, err := c.opts.Cache.Resolve(u)
	if err != nil {
		return nil, err
	}
	e, err := c.opts.Cache.Get(d)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(c.opts.Cache.GetFile(d))
	if err != nil {
		return nil, err
	}
	slog.Debug("fetch from cache", "url", u, "digest", d, "size", e.Size)
	return &Response{URL: u, Body: f, ContentLength: e.Size, FromCache: true}, nil
}

// cancelBody beendet den Timeout-Context beim Schliessen.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}
