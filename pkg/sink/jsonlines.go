package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/githarvest/pkg/records"
)

const filePerm = 0o640

// line is the envelope of one JSON lines record.
type line struct {
	Kind   records.Kind `json:"kind"`
	Record any          `json:"record"`
}

// JSONLines writes one JSON object per record, optionally lz4-compressed.
type JSONLines struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	enc    *json.Encoder
	closer []io.Closer
}

// NewJSONLines writes records to w. Close flushes but does not close w.
func NewJSONLines(w io.Writer) *JSONLines {
	buf := bufio.NewWriter(w)

	return &JSONLines{buf: buf, enc: json.NewEncoder(buf)}
}

// NewCompressedJSONLines writes an lz4 framed stream to w. Close ends the
// frame but does not close w.
func NewCompressedJSONLines(w io.Writer) *JSONLines {
	zw := lz4.NewWriter(w)
	s := NewJSONLines(zw)
	s.closer = []io.Closer{zw}

	return s
}

// CreateJSONLines creates (or truncates) the file at path. With compress set
// the stream is lz4 framed.
func CreateJSONLines(path string, compress bool) (*JSONLines, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}

	if !compress {
		s := NewJSONLines(file)
		s.closer = []io.Closer{file}

		return s, nil
	}

	s := NewCompressedJSONLines(file)
	s.closer = append(s.closer, file)

	return s, nil
}

// Write implements records.Sink.
func (s *JSONLines) Write(_ context.Context, kind records.Kind, record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc == nil {
		return ErrClosed
	}

	err := s.enc.Encode(line{Kind: kind, Record: record})
	if err != nil {
		return fmt.Errorf("encode %s record: %w", kind, err)
	}

	return nil
}

// Close flushes buffered records and closes the files the sink opened.
func (s *JSONLines) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc == nil {
		return nil
	}

	s.enc = nil

	errs := []error{s.buf.Flush()}
	for _, c := range s.closer {
		errs = append(errs, c.Close())
	}

	return errors.Join(errs...)
}

// ReadJSONLines decodes a stream produced by JSONLines, calling fn for each
// record with its raw JSON payload. Set compressed for lz4 streams.
func ReadJSONLines(r io.Reader, compressed bool, fn func(kind records.Kind, raw json.RawMessage) error) error {
	if compressed {
		r = lz4.NewReader(r)
	}

	dec := json.NewDecoder(r)

	for {
		var rec struct {
			Kind   records.Kind    `json:"kind"`
			Record json.RawMessage `json:"record"`
		}

		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("decode record: %w", err)
		}

		err = fn(rec.Kind, rec.Record)
		if err != nil {
			return err
		}
	}
}
