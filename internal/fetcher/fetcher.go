// Package fetcher downloads raster datasets over HTTP(S) or FTP into the
// data directory, unpacking ZIP archives.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher downloads a remote file.
type Fetcher interface {
	// Download fetches the URL and returns the body. The caller closes it.
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Options configures both transports.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	UserAgent  string
}

// ForURL picks the transport for rawURL's scheme.
func ForURL(rawURL string, opts Options) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return NewHTTPFetcher(HTTPOptions{
			UserAgent:  opts.UserAgent,
			Timeout:    opts.Timeout,
			MaxRetries: opts.MaxRetries,
		}), nil
	case "ftp":
		return NewFTPFetcher(FTPOptions{Timeout: opts.Timeout, MaxRetries: opts.MaxRetries}), nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// Result lists what a Fetch produced.
type Result struct {
	URL       string   `json:"url"`
	Bytes     int64    `json:"bytes"`
	Files     []string `json:"files"`
	Unchanged bool     `json:"unchanged,omitempty"`
}

// Fetch downloads rawURL into destDir. A .zip download is extracted and the
// archive removed; Files lists the extracted files. HTTP downloads are
// skipped when the server reports the ETag recorded by the previous fetch.
func Fetch(ctx context.Context, rawURL, destDir string, opts Options) (*Result, error) {
	name, err := fileName(rawURL)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "fetcher: create data dir")
	}

	f, err := ForURL(rawURL, opts)
	if err != nil {
		return nil, err
	}

	dest := filepath.Join(destDir, name)
	res := &Result{URL: rawURL}
	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", rawURL))

	if hf, ok := f.(*HTTPFetcher); ok {
		n, changed, err := hf.downloadWithETag(ctx, rawURL, dest)
		if err != nil {
			return nil, err
		}
		if !changed {
			log.Info("dataset unchanged", zap.String("path", dest))
			res.Unchanged = true
			return res, nil
		}
		res.Bytes = n
	} else {
		body, err := f.Download(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		n, err := writeFile(dest, body)
		_ = body.Close()
		if err != nil {
			return nil, err
		}
		res.Bytes = n
	}

	if !strings.EqualFold(filepath.Ext(dest), ".zip") {
		res.Files = []string{dest}
		log.Info("dataset downloaded", zap.String("path", dest), zap.Int64("bytes", res.Bytes))
		return res, nil
	}

	files, err := ExtractZIP(dest, destDir)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(dest); err != nil {
		log.Warn("remove archive failed", zap.String("path", dest), zap.Error(err))
	}
	res.Files = files
	log.Info("dataset extracted", zap.Int("files", len(files)), zap.Int64("bytes", res.Bytes))
	return res, nil
}

func fileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: parse url")
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", eris.Errorf("fetcher: url %q has no file name", rawURL)
	}
	return name, nil
}

// writeFile copies r to path through a temporary file so a failed download
// never leaves a truncated raster behind.
func writeFile(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return n, eris.Wrap(err, "fetcher: write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "fetcher: close file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, eris.Wrap(err, "fetcher: rename file")
	}
	return n, nil
}
