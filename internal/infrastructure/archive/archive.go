package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"PfamSurvey/internal/infrastructure/command"
	"PfamSurvey/internal/ports"
)

const gzSuffix = ".gz"

// DecompressedName strips the .gz suffix from a path.
func DecompressedName(path string) (string, error) {
	if !strings.HasSuffix(path, gzSuffix) || len(path) == len(gzSuffix) {
		return "", fmt.Errorf("%s is not a .gz file", path)
	}
	return strings.TrimSuffix(path, gzSuffix), nil
}

// Gunzip decompresses in process.
type Gunzip struct{}

var _ ports.Decompressor = Gunzip{}

// Decompress writes path without its .gz suffix and removes the archive.
func (Gunzip) Decompress(ctx context.Context, path string) (string, error) {
	dest, err := DecompressedName(path)
	if err != nil {
		return "", err
	}

	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("read gzip header %s: %w", path, err)
	}
	defer zr.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}

	if _, err := io.Copy(out, ctxReader{ctx: ctx, r: zr}); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return "", fmt.Errorf("decompress %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("close %s: %w", dest, err)
	}

	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("remove archive: %w", err)
	}
	return dest, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Command decompresses with an external tool that replaces x.gz by x.
type Command struct {
	tool string
}

var _ ports.Decompressor = Command{}

// NewCommand wraps tool; empty means gunzip.
func NewCommand(tool string) Command {
	if tool == "" {
		tool = "gunzip"
	}
	return Command{tool: tool}
}

// Decompress runs the tool on path and checks the expected output exists.
func (c Command) Decompress(ctx context.Context, path string) (string, error) {
	dest, err := DecompressedName(path)
	if err != nil {
		return "", err
	}
	if _, err := command.Run(ctx, "", c.tool, path); err != nil {
		return "", err
	}
	if _, err := os.Stat(dest); err != nil {
		return "", fmt.Errorf("%s left no %s: %w", c.tool, dest, err)
	}
	return dest, nil
}

// New picks the external tool when one is configured, in-process gzip otherwise.
func New(tool string) ports.Decompressor {
	if tool == "" {
		return Gunzip{}
	}
	return NewCommand(tool)
}
