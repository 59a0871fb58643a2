package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Fetcher retrieves a whole resource. No range requests are issued.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// ResourceFetcher reads http/https URLs through an http.Client and anything
// without a scheme (or with file://) from the local filesystem.
type ResourceFetcher struct {
	Client *http.Client
}

// NewResourceFetcher returns a fetcher using http.DefaultClient.
func NewResourceFetcher() *ResourceFetcher {
	return &ResourceFetcher{Client: http.DefaultClient}
}

func (f *ResourceFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	// Windows paths use backslashes; url.Parse does not.
	u, err := url.Parse(strings.ReplaceAll(location, `\`, `/`))
	if err != nil {
		return nil, fmt.Errorf("resource: could not parse '%s': %w", location, err)
	}

	switch u.Scheme {
	case "", "file":
		path := u.Path
		if u.Scheme == "" {
			path = location
		}
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("resource: could not read '%s': %w", path, err)
		}
		return data, nil
	case "http", "https":
		return f.fetchRemote(ctx, u)
	default:
		return nil, fmt.Errorf("resource: unsupported scheme '%s'", u.Scheme)
	}
}

func (f *ResourceFetcher) fetchRemote(ctx context.Context, u *url.URL) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("resource: could not fetch '%s': %w", u, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resource: could not fetch '%s': %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &StatusError{URL: u.String(), StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("resource: could not read body of '%s': %w", u, err)
	}
	return data, nil
}

// StatusError reports an HTTP response with a 4xx/5xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resource: could not fetch '%s': status %d", e.URL, e.StatusCode)
}
