// Package fetch streams the published company dataset archive. It downloads
// the zip to a temporary spool file (never into memory), then exposes the
// contained CSV as an incremental byte stream with size hints for progress
// estimation.
package fetch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultTimeout bounds the whole archive download. The full dataset is
// multi-gigabyte, so this is deliberately generous.
const DefaultTimeout = 30 * time.Minute

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; CompaniesSearch/1.0)"

// Error represents a failure while fetching the dataset.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the fetch behavior.
type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// Stream is the decompressed CSV byte stream extracted from the archive,
// along with whatever size hints the transport and zip directory provided.
// Close releases the zip handle and deletes the spool file.
type Stream struct {
	// Name is the archive member being streamed.
	Name string
	// UncompressedSize is the member's size from the zip directory, 0 if absent.
	UncompressedSize int64
	// ContentLength is the transport Content-Length of the archive, -1 if unknown.
	ContentLength int64

	reader   io.ReadCloser
	archive  *zip.ReadCloser
	spoolDir string
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

// Close closes the member reader and the archive, and removes the spool file.
func (s *Stream) Close() error {
	err := s.reader.Close()
	if cerr := s.archive.Close(); err == nil {
		err = cerr
	}
	if rerr := os.RemoveAll(s.spoolDir); err == nil {
		err = rerr
	}
	return err
}

// Archive downloads the dataset zip from urlStr and opens its first CSV member
// for streaming. The payload is spooled to a temporary file because zip needs
// random access to the central directory; the CSV itself is never materialized.
func Archive(ctx context.Context, urlStr string, opts *Options) (*Stream, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{URL: urlStr, Message: "invalid URL", Cause: err}
	}

	client := &http.Client{Timeout: opts.Timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", opts.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{URL: urlStr, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	spoolDir, err := os.MkdirTemp("", "companies-archive-")
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to create spool directory", Cause: err}
	}
	spoolPath := spoolDir + "/dataset.zip"

	if err := spoolBody(spoolPath, resp.Body); err != nil {
		_ = os.RemoveAll(spoolDir)
		return nil, &Error{URL: urlStr, Message: "failed to download archive", Cause: err}
	}

	archive, err := zip.OpenReader(spoolPath)
	if err != nil {
		_ = os.RemoveAll(spoolDir)
		return nil, &Error{URL: urlStr, Message: "downloaded payload is not a zip archive", Cause: err}
	}

	member := pickCSVMember(archive)
	if member == nil {
		_ = archive.Close()
		_ = os.RemoveAll(spoolDir)
		return nil, &Error{URL: urlStr, Message: "archive contains no CSV member"}
	}

	reader, err := member.Open()
	if err != nil {
		_ = archive.Close()
		_ = os.RemoveAll(spoolDir)
		return nil, &Error{URL: urlStr, Message: "failed to open archive member", Cause: err}
	}

	return &Stream{
		Name:             member.Name,
		UncompressedSize: int64(member.UncompressedSize64),
		ContentLength:    resp.ContentLength,
		reader:           reader,
		archive:          archive,
		spoolDir:         spoolDir,
	}, nil
}

func spoolBody(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// pickCSVMember chooses the CSV entry to stream. The published archive holds a
// single CSV; fall back to the first member if none carries the extension.
func pickCSVMember(archive *zip.ReadCloser) *zip.File {
	for _, f := range archive.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			return f
		}
	}
	if len(archive.File) > 0 {
		return archive.File[0]
	}
	return nil
}
