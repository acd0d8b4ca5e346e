package s0_data

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Downloader fetches a URL into w
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// IsRemote reports whether p is an http(s) URL
func IsRemote(p string) bool {
	lower := strings.ToLower(p)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// RemoteSource downloads its inputs into a scratch directory and reads them
// with the matching file source. Non-URL paths are read in place.
type RemoteSource struct {
	format string
	paths  Paths
	dl     Downloader
}

// NewRemoteSource returns a Source over URL paths. An empty format is
// guessed from the bars URL path.
func NewRemoteSource(format string, paths Paths, dl Downloader) (*RemoteSource, error) {
	if paths.Bars == "" {
		return nil, fmt.Errorf("bars path is required")
	}
	if dl == nil {
		return nil, fmt.Errorf("downloader is required")
	}
	if format == "" {
		format = FormatFromPath(urlPath(paths.Bars))
	}
	return &RemoteSource{format: format, paths: paths, dl: dl}, nil
}

// Load implements Source
func (s *RemoteSource) Load(ctx context.Context) (*Dataset, error) {
	dir, err := os.MkdirTemp("", "aegis-data-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	local := s.paths
	for _, p := range []*string{&local.Bars, &local.Aux, &local.Instruments} {
		if *p == "" || !IsRemote(*p) {
			continue
		}
		dst, err := s.fetch(ctx, dir, *p)
		if err != nil {
			return nil, err
		}
		*p = dst
	}

	src, err := NewSource(s.format, local)
	if err != nil {
		return nil, err
	}
	return src.Load(ctx)
}

func (s *RemoteSource) fetch(ctx context.Context, dir, rawURL string) (string, error) {
	f, err := os.CreateTemp(dir, "*-"+path.Base(urlPath(rawURL)))
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	defer f.Close()

	if _, err := s.dl.Download(ctx, rawURL, f); err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return filepath.Clean(f.Name()), nil
}

// urlPath strips scheme, host and query so extensions can be inspected
func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
