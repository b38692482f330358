package client

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/ideaspaper/reqkit/internal/filesystem"
	"github.com/ideaspaper/reqkit/pkg/errors"
	"github.com/ideaspaper/reqkit/pkg/response"
)

const (
	defaultDownloadConcurrency = 3
	defaultDownloadTimeout     = 5 * time.Minute
	fallbackDownloadName       = "download"
)

// Downloader saves response bodies into a directory.
type Downloader struct {
	client *Client

	// Dir receives the files.
	Dir string

	// MaxConcurrent bounds DownloadFiles. Non-positive means 3.
	MaxConcurrent int

	// Timeout applies to each download. Zero means five minutes.
	Timeout time.Duration

	// FS is the file system to write to. Nil means the OS file system.
	FS filesystem.FileSystem

	// Progress, when set, is called as bytes arrive for url.
	Progress func(url string, read, total int64)
}

// DownloadResult is the outcome of one DownloadFiles entry.
type DownloadResult struct {
	URL   string
	Path  string
	Bytes int64
	Err   error
}

// Downloader returns a Downloader writing into dir.
func (c *Client) Downloader(dir string) *Downloader {
	return &Downloader{client: c, Dir: dir}
}

// DownloadFile fetches rawURL and stores the body under Dir. An empty
// fileName takes the last segment of the URL path. Non-2xx responses are
// errors and write nothing.
func (d *Downloader) DownloadFile(ctx context.Context, rawURL, fileName string) (string, int64, error) {
	if fileName == "" {
		fileName = fileNameFromURL(rawURL)
	}
	dest := filepath.Join(d.Dir, filepath.Base(fileName))

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	resp, err := d.client.Get(rawURL).Timeout(timeout).Send(ctx)
	if err != nil {
		return "", 0, err
	}
	defer resp.Close()
	if !resp.IsSuccess() {
		return "", 0, &errors.StatusError{StatusCode: resp.StatusCode, Status: resp.Status, URL: rawURL}
	}

	var progress response.ProgressFunc
	if d.Progress != nil {
		progress = func(read, total int64) { d.Progress(rawURL, read, total) }
	}
	n, err := resp.SaveToFile(d.FS, dest, progress)
	if err != nil {
		return "", n, err
	}
	d.client.logger.Debug("download saved", "url", rawURL, "path", dest, "bytes", n)
	return dest, n, nil
}

// DownloadFiles fetches every URL with at most MaxConcurrent transfers in
// flight. Results keep the order of urls; one failure does not stop the rest.
func (d *Downloader) DownloadFiles(ctx context.Context, urls ...string) []DownloadResult {
	limit := d.MaxConcurrent
	if limit <= 0 {
		limit = defaultDownloadConcurrency
	}

	results := make([]DownloadResult, len(urls))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = DownloadResult{URL: u, Err: errors.Wrap(errors.ErrCanceled, "download "+u)}
				return
			}
			defer func() { <-sem }()

			p, n, err := d.DownloadFile(ctx, u, "")
			results[i] = DownloadResult{URL: u, Path: p, Bytes: n, Err: err}
		}(i, u)
	}

	wg.Wait()
	return results
}

func fileNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallbackDownloadName
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return fallbackDownloadName
	}
	return name
}
