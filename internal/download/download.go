// Package download fetches model assets over HTTP into a cache directory.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// MaxRedirects bounds how many redirect hops a download follows.
const MaxRedirects = 10

var (
	// ErrTooManyRedirects is returned when the redirect chain exceeds MaxRedirects.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrEmptyPayload is returned when the server sent no bytes.
	ErrEmptyPayload = errors.New("downloaded empty payload")
)

// Client downloads files. The zero value is usable.
type Client struct {
	// HTTP is the underlying client. Its redirect policy is overridden.
	HTTP *http.Client

	// Timeout bounds a single file download. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// File downloads rawURL to dst unless dst already exists. Bytes are written to
// dst + ".download" and renamed into place only after a complete transfer; the
// partial file is removed on any error.
func (c *Client) File(ctx context.Context, rawURL, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	name := filepath.Base(dst)
	log.Info("Downloading asset", "file", name, "size", sizeOf(resp.ContentLength))

	tmpPath := dst + ".download"
	if err := os.RemoveAll(tmpPath); err != nil {
		return err
	}
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	pw := &progressWriter{name: name, total: resp.ContentLength, nextPct: 10}
	n, copyErr := io.Copy(io.MultiWriter(f, pw), resp.Body)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to download %s: %w", name, copyErr)
	case closeErr != nil:
		_ = os.Remove(tmpPath)
		return closeErr
	case n <= 0:
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%s: %w", name, ErrEmptyPayload)
	case resp.ContentLength > 0 && n != resp.ContentLength:
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%s: short download, got %d of %d bytes", name, n, resp.ContentLength)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	log.Info("Download complete", "file", name, "size", humanize.Bytes(uint64(n)))
	return nil
}

// get issues the request and follows redirects by hand, replaying the GET
// against each Location.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	base := c.HTTP
	if base == nil {
		base = http.DefaultClient
	}
	client := *base
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	current := rawURL
	for hop := 0; hop <= MaxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return resp, nil
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
			http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			next, err := resolveLocation(req.URL, resp.Header.Get("Location"))
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
			log.Debug("Following redirect", "status", resp.StatusCode, "host", next.Host)
			current = next.String()
		default:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, fmt.Errorf("download failed: HTTP %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
	}
	return nil, fmt.Errorf("%w: more than %d hops", ErrTooManyRedirects, MaxRedirects)
}

func resolveLocation(from *url.URL, location string) (*url.URL, error) {
	if location == "" {
		return nil, errors.New("redirect without Location header")
	}
	to, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect location: %w", err)
	}
	return from.ResolveReference(to), nil
}

func sizeOf(n int64) string {
	if n <= 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}

// progressWriter logs coarse progress, once per 10% of the expected size.
type progressWriter struct {
	name    string
	total   int64
	written int64
	nextPct int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total <= 0 {
		return len(b), nil
	}
	pct := p.written * 100 / p.total
	if pct >= p.nextPct {
		log.Info("Download progress", "file", p.name, "percent", pct,
			"done", humanize.Bytes(uint64(p.written)), "total", humanize.Bytes(uint64(p.total)))
		for p.nextPct <= pct {
			p.nextPct += 10
		}
	}
	return len(b), nil
}
