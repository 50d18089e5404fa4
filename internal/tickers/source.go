package tickers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// SourceError reports an instrument list that cannot be opened or read.
// It is fatal to the batch.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("instrument source: %v", e.Err)
	}
	return fmt.Sprintf("instrument source %s: %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Source produces raw instrument identifiers one line at a time.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream yields raw identifiers. Next returns ok=false once exhausted.
type Stream interface {
	Next() (raw string, ok bool, err error)
	Close() error
}

// FileSource reads one identifier per line from a text file.
type FileSource struct {
	Path string
}

// NewFileSource builds a file-backed source.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Open resolves the file; a missing file surfaces as *SourceError.
func (f *FileSource) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, &SourceError{Path: f.Path, Err: err}
	}
	return &fileStream{path: f.Path, file: file, scanner: bufio.NewScanner(file)}, nil
}

type fileStream struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
}

func (s *fileStream) Next() (string, bool, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), true, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", false, &SourceError{Path: s.path, Err: err}
	}
	return "", false, nil
}

func (s *fileStream) Close() error {
	return s.file.Close()
}

// StaticSource serves a fixed list, e.g. from the --tickers flag.
type StaticSource []string

// ParseList splits a comma separated ticker list.
func ParseList(list string) StaticSource {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	return StaticSource(strings.Split(list, ","))
}

// Open never fails unless ctx is already done.
func (s StaticSource) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := make([]string, len(s))
	copy(items, s)
	return &sliceStream{items: items}, nil
}

type sliceStream struct {
	items []string
	pos   int
}

func (s *sliceStream) Next() (string, bool, error) {
	if s.pos >= len(s.items) {
		return "", false, nil
	}
	item := s.items[s.pos]
	s.pos++
	return item, true, nil
}

func (s *sliceStream) Close() error { return nil }

// IsSourceError reports whether err originated from an instrument source.
func IsSourceError(err error) bool {
	var srcErr *SourceError
	return errors.As(err, &srcErr)
}
