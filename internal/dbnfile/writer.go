package dbnfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/Alparse/databento-client-sub000/internal/dbn"
)

// Writer persists a metadata header and a record sequence in store
// framing. Not safe for concurrent use.
type Writer struct {
	path string
	f    *os.File
	w    *bufio.Writer
	n    uint64
}

// Create creates (or truncates) a store file and writes its header.
func Create(path string, meta *dbn.Metadata) (*Writer, error) {
	payload, err := dbn.EncodeMetadata(meta)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)

	prelude := make([]byte, len(dbn.Magic)+1+4)
	copy(prelude, dbn.Magic)
	prelude[len(dbn.Magic)] = meta.Version
	binary.LittleEndian.PutUint32(prelude[len(dbn.Magic)+1:], uint32(len(payload)))

	if _, err := w.Write(prelude); err == nil {
		_, err = w.Write(payload)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("write header %s: %w", path, err)
	}

	return &Writer{path: path, f: f, w: w}, nil
}

// WriteRecord appends one record.
func (w *Writer) WriteRecord(rec dbn.Record) error {
	data, err := dbn.Encode(rec)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("write record to %s: %w", w.path, err)
	}
	w.n++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() uint64 { return w.n }

// Close flushes and closes the file.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	return w.f.Close()
}
