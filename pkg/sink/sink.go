// Package sink provides the destinations the tap writes its message
// stream to.
package sink

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ajitpratap0/tap-twilio/pkg/compression"
	"github.com/ajitpratap0/tap-twilio/pkg/errors"
)

// DefaultBufferSize is the write buffer used by every sink.
const DefaultBufferSize = 64 * 1024

// Sink receives serialized messages. Close flushes buffered output and
// releases any underlying resources; a sink is not usable afterwards.
type Sink interface {
	io.Writer
	io.Closer
}

// Config selects and configures a sink.
type Config struct {
	// Path is the output file. Empty or "-" selects standard output.
	Path        string
	Compression compression.Algorithm
	Level       compression.Level
	BufferSize  int
}

// Open returns the sink described by cfg. A compressed file sink is
// created at OutputPath(cfg.Path, cfg.Compression).
func Open(cfg Config) (Sink, error) {
	if isStdout(cfg.Path) {
		if cfg.Compression != "" && cfg.Compression != compression.None {
			return NewWriter(os.Stdout, cfg)
		}
		return NewStdout(), nil
	}
	return NewFile(OutputPath(cfg.Path, cfg.Compression), cfg)
}

// OutputPath appends the algorithm's file extension to path unless path
// already ends with it. Standard output is returned unchanged.
func OutputPath(path string, a compression.Algorithm) string {
	ext := a.Extension()
	if isStdout(path) || ext == "" || strings.HasSuffix(path, ext) {
		return path
	}
	return path + ext
}

func isStdout(path string) bool {
	return path == "" || path == "-"
}

// WriterSink buffers writes into an io.Writer it does not own.
type WriterSink struct {
	mu         sync.Mutex
	writer     *bufio.Writer
	compressor io.WriteCloser
	file       *os.File
	closed     bool
	written    int64
}

// NewStdout returns an uncompressed sink on standard output.
func NewStdout() *WriterSink {
	return &WriterSink{
		writer: bufio.NewWriterSize(os.Stdout, DefaultBufferSize),
	}
}

// NewWriter returns a sink writing to w with cfg's compression. Closing
// the sink does not close w.
func NewWriter(w io.Writer, cfg Config) (*WriterSink, error) {
	compressor, err := compression.NewWriter(w, &compression.Config{
		Algorithm: cfg.Compression,
		Level:     levelOrDefault(cfg.Level),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to create compression writer").
			WithDetail("compression", string(cfg.Compression))
	}

	return &WriterSink{
		writer:     bufio.NewWriterSize(compressor, bufferSize(cfg)),
		compressor: compressor,
	}, nil
}

// NewFile creates (or truncates) path and returns a sink writing to it.
func NewFile(path string, cfg Config) (*WriterSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, "failed to create output file").
			WithDetail("path", path)
	}

	s, err := NewWriter(file, cfg)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	s.file = file
	return s, nil
}

// Write buffers p.
func (s *WriterSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.New(errors.ErrorTypeSink, "write to closed sink")
	}
	n, err := s.writer.Write(p)
	s.written += int64(n)
	if err != nil {
		return n, errors.Wrap(err, errors.ErrorTypeSink, "failed to write output")
	}
	return n, nil
}

// Written returns the number of uncompressed bytes accepted so far.
func (s *WriterSink) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Close flushes the buffer, finishes the compressed stream and closes the
// output file if the sink owns one. Closing twice is a no-op.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var first error
	if err := s.writer.Flush(); err != nil {
		first = errors.Wrap(err, errors.ErrorTypeSink, "failed to flush output")
	}
	if s.compressor != nil {
		if err := s.compressor.Close(); err != nil && first == nil {
			first = errors.Wrap(err, errors.ErrorTypeSink, "failed to finish compressed stream")
		}
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && first == nil {
			first = errors.Wrap(err, errors.ErrorTypeSink, "failed to close output file")
		}
	}
	return first
}

func bufferSize(cfg Config) int {
	if cfg.BufferSize > 0 {
		return cfg.BufferSize
	}
	return DefaultBufferSize
}

func levelOrDefault(l compression.Level) compression.Level {
	if l == 0 {
		return compression.Default
	}
	return l
}
