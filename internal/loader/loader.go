// Package loader reads clinical notes from disk or object storage and
// normalizes them into cleaned text and chunks.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/medrag/internal/sanitize"
)

var (
	// ErrNotFound indicates the note file or object does not exist.
	ErrNotFound = errors.New("input not found")
	// ErrUnsupportedFormat indicates an extension the loader cannot read.
	ErrUnsupportedFormat = errors.New("unsupported file format, use .txt, .json, .md or .pdf")
	// ErrMalformedRecord indicates a structured record that failed to parse or validate.
	ErrMalformedRecord = errors.New("malformed record")
)

// DefaultMaxBytes caps how much of a single note is read.
const DefaultMaxBytes int64 = 32 << 20

// Format identifies how a note is decoded.
type Format string

const (
	FormatText     Format = "text"
	FormatEHR      Format = "ehr"
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
)

// DetectFormat maps a path or key extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return FormatText, nil
	case ".json":
		return FormatEHR, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// Document is a loaded note before cleaning.
type Document struct {
	Source string
	Format Format
	Text   string
}

// Loader resolves note sources.
type Loader struct {
	objects  ObjectFetcher
	maxBytes int64
	root     string
}

// Option configures a Loader.
type Option func(*Loader)

// WithObjectFetcher enables s3:// sources.
func WithObjectFetcher(f ObjectFetcher) Option {
	return func(l *Loader) { l.objects = f }
}

// WithRoot confines local sources to dir. Relative paths resolve against
// it, and traversal or links out of it fail with sanitize.ErrPathTraversal.
func WithRoot(dir string) Option {
	return func(l *Loader) { l.root = dir }
}

// Root returns the directory local sources are confined to, if any.
func (l *Loader) Root() string {
	return l.root
}

// WithMaxBytes overrides DefaultMaxBytes.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads source, a local path or s3://bucket/key, and decodes it by
// extension. A missing local file reports ErrNotFound even when its
// extension is unsupported; object keys are checked for format before any
// network call.
func (l *Loader) Load(ctx context.Context, source string) (*Document, error) {
	var (
		format Format
		data   []byte
		err    error
	)
	if strings.HasPrefix(source, S3Scheme) {
		if format, err = DetectFormat(source); err != nil {
			return nil, err
		}
		if data, err = l.fetchObject(ctx, source); err != nil {
			return nil, err
		}
	} else {
		path := source
		if l.root != "" {
			if path, err = sanitize.ValidatePath(source, l.root); err != nil {
				return nil, fmt.Errorf("note path %q: %w", source, err)
			}
		}
		if data, err = l.readFile(path); err != nil {
			return nil, err
		}
		if format, err = DetectFormat(source); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err := Decode(format, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}

	return &Document{Source: source, Format: format, Text: text}, nil
}

// Decode converts raw bytes of the given format to note text.
func Decode(format Format, data []byte) (string, error) {
	switch format {
	case FormatText:
		return string(data), nil
	case FormatEHR:
		return FlattenEHR(data)
	case FormatMarkdown:
		return MarkdownText(data), nil
	case FormatPDF:
		return PDFText(data)
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	if info.Size() > l.maxBytes {
		return nil, fmt.Errorf("%s is %d bytes (max %d)", path, info.Size(), l.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(f, l.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (l *Loader) fetchObject(ctx context.Context, uri string) ([]byte, error) {
	if l.objects == nil {
		return nil, fmt.Errorf("s3 sources are not configured: %s", uri)
	}
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	return l.objects.Fetch(ctx, bucket, key)
}
