package fsinstall

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Fetcher downloads one archive to dest.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	// Some release hosts are slow to hand-shake; the default is 10s.
	transport.TLSHandshakeTimeout = 30 * time.Second
	return &http.Client{Transport: transport}
}

// HTTPFetcher downloads over HTTP(S). When Progress is set a progress bar is
// drawn there while the body is copied.
type HTTPFetcher struct {
	Client   *http.Client
	Progress io.Writer
}

func NewHTTPFetcher(progress io.Writer) *HTTPFetcher {
	return &HTTPFetcher{Client: newHTTPClient(), Progress: progress}
}

// Fetch downloads url into dest. A file already at dest is taken as a
// finished download, since partial downloads only ever exist as dest.part.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		loggerFromContext(ctx).Debug("archive already downloaded", "file", dest)
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := f.Client
	if client == nil {
		client = newHTTPClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http get failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	return writeAtomically(dest, func(w io.Writer) error {
		if f.Progress != nil {
			bar := progressbar.NewOptions64(resp.ContentLength,
				progressbar.OptionSetWriter(f.Progress),
				progressbar.OptionSetDescription(filepath.Base(dest)),
				progressbar.OptionShowBytes(true),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionClearOnFinish(),
			)
			defer bar.Finish()
			w = io.MultiWriter(w, bar)
		}
		_, err := io.Copy(w, resp.Body)
		return err
	})
}

// writeAtomically streams into dest.part and renames it to dest on success.
func writeAtomically(dest string, fill func(w io.Writer) error) error {
	part := dest + ".part"
	out, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", part, err)
	}
	if err := fill(out); err != nil {
		out.Close()
		os.Remove(part)
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return err
	}
	return os.Rename(part, dest)
}
