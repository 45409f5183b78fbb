package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"PfamSurvey/internal/domain"
	"PfamSurvey/internal/infrastructure/command"
	"PfamSurvey/internal/ports"
)

const defaultChunkSize = 8192

// Client streams remote files to disk in bounded chunks.
type Client struct {
	http      *http.Client
	chunkSize int
	userAgent string
}

var _ ports.Retriever = (*Client)(nil)

// NewClient builds a downloader; a nil client gets the given timeout.
func NewClient(client *http.Client, chunkSize int, timeout time.Duration, userAgent string) *Client {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Client{http: client, chunkSize: chunkSize, userAgent: userAgent}
}

// Retrieve downloads url into dest. A partial file is removed on failure.
func (c *Client) Retrieve(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.NetworkError{URL: url, Status: resp.Status}
	}

	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	if _, err := copyChunked(file, resp.Body, c.chunkSize); err != nil {
		_ = file.Close()
		_ = os.Remove(dest)
		return &domain.NetworkError{URL: url, Err: err}
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("close %s: %w", dest, err)
	}
	return nil
}

func copyChunked(dst io.Writer, src io.Reader, size int) (int64, error) {
	buf := make([]byte, size)
	return io.CopyBuffer(onlyWriter{dst}, onlyReader{src}, buf)
}

// onlyWriter hides ReadFrom so io.CopyBuffer honours the chunk buffer.
type onlyWriter struct {
	w io.Writer
}

func (o onlyWriter) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

// onlyReader hides WriteTo for the same reason.
type onlyReader struct {
	r io.Reader
}

func (o onlyReader) Read(p []byte) (int, error) {
	return o.r.Read(p)
}

// CommandRetriever delegates to an external retrieval tool such as wget.
type CommandRetriever struct {
	tool string
	dir  string
}

var _ ports.Retriever = (*CommandRetriever)(nil)

// NewCommandRetriever runs tool as "<tool> <url> -O <dest>" inside dir.
func NewCommandRetriever(tool, dir string) *CommandRetriever {
	if tool == "" {
		tool = "wget"
	}
	return &CommandRetriever{tool: tool, dir: dir}
}

// Retrieve invokes the tool and waits for it to exit.
func (r *CommandRetriever) Retrieve(ctx context.Context, url, dest string) error {
	if _, err := command.Run(ctx, r.dir, r.tool, url, "-O", dest); err != nil {
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(r.dir, dest)
		}
		_ = os.Remove(dest)
		return err
	}
	return nil
}
