package dbnfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/Alparse/databento-client-sub000/internal/dbn"
)

// ErrNotFound reports a missing store file. It wraps fs.ErrNotExist.
var ErrNotFound = fmt.Errorf("store not found: %w", fs.ErrNotExist)

// FormatError reports an unparseable store header.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("dbnfile: %s: %s", e.Path, e.Reason)
}

// maxMetadataLen caps the declared metadata length so a corrupt header
// cannot drive a huge allocation.
const maxMetadataLen = 1 << 24

// Store is a pull-based reader over a persisted DBN file. Not safe for
// concurrent use; one reader drives one store.
type Store struct {
	path   string
	logger *slog.Logger

	f          *os.File
	r          *bufio.Reader
	meta       *dbn.Metadata
	dataOffset int64
}

// Open opens a store and parses its metadata header. A missing file
// fails with ErrNotFound, an unparseable header with *FormatError.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s := &Store{path: path, logger: logger, f: f, r: bufio.NewReader(f)}
	if err := s.readHeader(); err != nil {
		f.Close()
		return nil, err
	}

	logger.Debug("store opened",
		"path", path,
		"dataset", s.meta.Dataset,
		"version", s.meta.Version,
	)
	return s, nil
}

func (s *Store) formatErr(reason string) error {
	return &FormatError{Path: s.path, Reason: reason}
}

func (s *Store) readHeader() error {
	prelude := make([]byte, len(dbn.Magic)+1+4)
	if _, err := io.ReadFull(s.r, prelude); err != nil {
		return s.formatErr("header shorter than prelude")
	}
	if string(prelude[:len(dbn.Magic)]) != dbn.Magic {
		return s.formatErr("missing " + dbn.Magic + " magic")
	}
	version := prelude[len(dbn.Magic)]

	metaLen := binary.LittleEndian.Uint32(prelude[len(dbn.Magic)+1:])
	if metaLen == 0 || metaLen > maxMetadataLen {
		return s.formatErr(fmt.Sprintf("implausible metadata length %d", metaLen))
	}

	payload := make([]byte, metaLen)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		return s.formatErr("truncated metadata payload")
	}

	meta, err := dbn.DecodeMetadata(payload, version)
	if err != nil {
		return s.formatErr(err.Error())
	}

	s.meta = meta
	s.dataOffset = int64(len(prelude)) + int64(metaLen)
	return nil
}

// GetMetadata returns the metadata parsed at Open. The returned value
// is shared and must not be mutated.
func (s *Store) GetMetadata() *dbn.Metadata {
	return s.meta
}

// NextRecord returns the next record in file order. A clean end of
// input returns io.EOF; trailing bytes that do not form a whole record
// are an error, not a silent stop.
func (s *Store) NextRecord() (dbn.Record, error) {
	lengthByte, err := s.r.ReadByte()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("read record length: %w", err)
	}

	size := int(lengthByte) * 4
	if size < dbn.HeaderSize {
		return nil, fmt.Errorf("dbnfile: %s: record length %d below header size", s.path, size)
	}

	buf := make([]byte, size)
	buf[0] = lengthByte
	if _, err := io.ReadFull(s.r, buf[1:]); err != nil {
		return nil, fmt.Errorf("dbnfile: %s: truncated record (want %d bytes): %w", s.path, size, err)
	}

	rec, err := dbn.Decode(buf, dbn.RType(buf[1]))
	if err != nil {
		return nil, fmt.Errorf("dbnfile: %s: %w", s.path, err)
	}
	return rec, nil
}

// Replay decodes the whole store from the top, invoking onRecord for
// each record until it returns false or input ends. A non-nil
// onMetadata is invoked first.
func (s *Store) Replay(onRecord func(dbn.Record) bool, onMetadata func(*dbn.Metadata)) error {
	if err := s.Reset(); err != nil {
		return err
	}
	if onMetadata != nil {
		onMetadata(s.meta)
	}

	for {
		rec, err := s.NextRecord()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !onRecord(rec) {
			return nil
		}
	}
}

// Reset repositions to the first record. The header is not re-parsed;
// a subsequent full read reproduces the first pass.
func (s *Store) Reset() error {
	if _, err := s.f.Seek(s.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("reset %s: %w", s.path, err)
	}
	s.r.Reset(s.f)
	return nil
}

// Close releases the underlying file.
func (s *Store) Close() error {
	return s.f.Close()
}
