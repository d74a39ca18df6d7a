package dbn

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Magic prefixes every serialized metadata header, followed by a
// one-byte version.
const Magic = "DBN"

// Sentinels for optional metadata fields.
const (
	SchemaNone uint16 = 0xFFFF
	STypeNone  uint8  = 0xFF

	// DefaultSymbolCstrLen is the fixed width of symbol strings in the
	// metadata payload.
	DefaultSymbolCstrLen = 71

	datasetCstrLen = 16
)

// Metadata describes a file or query: what was requested and how symbols
// resolve to instrument ids over the covered range. Built once per open
// and immutable afterward.
type Metadata struct {
	Version       uint8
	Dataset       string
	Schema        uint16 // SchemaNone if mixed/unset
	Start         uint64 // nanoseconds since Unix epoch
	End           uint64 // UndefTimestamp if open-ended
	Limit         uint64
	STypeIn       uint8 // STypeNone if mixed/unset
	STypeOut      uint8
	TsOut         bool
	SymbolCstrLen uint16
	Symbols       []string
	Partial       []string
	NotFound      []string
	Mappings      []SymbolMapping
}

// SymbolMapping is the resolution history for one requested symbol.
type SymbolMapping struct {
	RawSymbol string
	Intervals []MappingInterval
}

// MappingInterval resolves the raw symbol over [StartDate, EndDate).
// Dates are YYYYMMDD integers.
type MappingInterval struct {
	StartDate uint32
	EndDate   uint32
	Symbol    string
}

// EncodeMetadata serializes the metadata payload (everything after the
// magic/version/length prelude).
func EncodeMetadata(m *Metadata) ([]byte, error) {
	cstrLen := int(m.SymbolCstrLen)
	if cstrLen == 0 {
		cstrLen = DefaultSymbolCstrLen
	}
	var buf bytes.Buffer
	if err := writeCstr(&buf, m.Dataset, datasetCstrLen, "dataset"); err != nil {
		return nil, err
	}
	writeU16(&buf, m.Schema)
	writeU64(&buf, m.Start)
	writeU64(&buf, m.End)
	writeU64(&buf, m.Limit)
	buf.WriteByte(m.STypeIn)
	buf.WriteByte(m.STypeOut)
	if m.TsOut {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	writeU16(&buf, uint16(cstrLen))

	for _, list := range [][]string{m.Symbols, m.Partial, m.NotFound} {
		writeU32(&buf, uint32(len(list)))
		for _, s := range list {
			if err := writeCstr(&buf, s, cstrLen, "symbol"); err != nil {
				return nil, err
			}
		}
	}

	writeU32(&buf, uint32(len(m.Mappings)))
	for _, mapping := range m.Mappings {
		if err := writeCstr(&buf, mapping.RawSymbol, cstrLen, "raw_symbol"); err != nil {
			return nil, err
		}
		writeU32(&buf, uint32(len(mapping.Intervals)))
		for _, iv := range mapping.Intervals {
			writeU32(&buf, iv.StartDate)
			writeU32(&buf, iv.EndDate)
			if err := writeCstr(&buf, iv.Symbol, cstrLen, "interval symbol"); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// DecodeMetadata parses a metadata payload. Any truncation or malformed
// field fails the whole parse; a partially populated Metadata is never
// returned.
func DecodeMetadata(payload []byte, version uint8) (*Metadata, error) {
	c := &cursor{buf: payload}
	m := &Metadata{Version: version}

	var err error
	if m.Dataset, err = c.cstr(datasetCstrLen, "dataset"); err != nil {
		return nil, err
	}
	m.Schema = c.u16()
	m.Start = c.u64()
	m.End = c.u64()
	m.Limit = c.u64()
	m.STypeIn = c.u8()
	m.STypeOut = c.u8()
	m.TsOut = c.u8() != 0
	m.SymbolCstrLen = c.u16()
	if c.err != nil {
		return nil, c.err
	}
	cstrLen := int(m.SymbolCstrLen)
	if cstrLen < 1 || cstrLen > 1024 {
		return nil, fmt.Errorf("dbn: metadata: implausible symbol_cstr_len %d", cstrLen)
	}

	for _, dst := range []*[]string{&m.Symbols, &m.Partial, &m.NotFound} {
		n := c.u32()
		if c.err != nil {
			return nil, c.err
		}
		if err := c.checkCount(n, cstrLen); err != nil {
			return nil, err
		}
		list := make([]string, 0, n)
		for i := uint32(0); i < n; i++ {
			s, err := c.cstr(cstrLen, "symbol")
			if err != nil {
				return nil, err
			}
			list = append(list, s)
		}
		*dst = list
	}

	nMappings := c.u32()
	if c.err != nil {
		return nil, c.err
	}
	if err := c.checkCount(nMappings, cstrLen); err != nil {
		return nil, err
	}
	m.Mappings = make([]SymbolMapping, 0, nMappings)
	for i := uint32(0); i < nMappings; i++ {
		var mapping SymbolMapping
		if mapping.RawSymbol, err = c.cstr(cstrLen, "raw_symbol"); err != nil {
			return nil, err
		}
		nIntervals := c.u32()
		if c.err != nil {
			return nil, c.err
		}
		if err := c.checkCount(nIntervals, cstrLen+8); err != nil {
			return nil, err
		}
		mapping.Intervals = make([]MappingInterval, 0, nIntervals)
		for j := uint32(0); j < nIntervals; j++ {
			var iv MappingInterval
			iv.StartDate = c.u32()
			iv.EndDate = c.u32()
			if iv.Symbol, err = c.cstr(cstrLen, "interval symbol"); err != nil {
				return nil, err
			}
			mapping.Intervals = append(mapping.Intervals, iv)
		}
		m.Mappings = append(m.Mappings, mapping)
	}
	if c.err != nil {
		return nil, c.err
	}
	return m, nil
}

// cursor reads little-endian fields sequentially, latching the first
// overrun instead of panicking.
type cursor struct {
	buf []byte
	off int
	err error
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.off+n > len(c.buf) {
		c.err = fmt.Errorf("dbn: metadata: truncated at offset %d (need %d bytes, have %d)",
			c.off, n, len(c.buf)-c.off)
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) u8() uint8 {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *cursor) u16() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (c *cursor) u32() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (c *cursor) u64() uint64 {
	b := c.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (c *cursor) cstr(size int, field string) (string, error) {
	b := c.take(size)
	if b == nil {
		return "", c.err
	}
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", fmt.Errorf("dbn: metadata: field %s is not NUL-terminated", field)
	}
	return string(b[:i]), nil
}

// checkCount rejects counts that could not possibly fit in the remaining
// buffer, before any allocation.
func (c *cursor) checkCount(n uint32, elemSize int) error {
	remaining := len(c.buf) - c.off
	if int64(n)*int64(elemSize) > int64(remaining) {
		return fmt.Errorf("dbn: metadata: count %d exceeds remaining %d bytes", n, remaining)
	}
	return nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeCstr(buf *bytes.Buffer, v string, size int, field string) error {
	if len(v) >= size {
		return fmt.Errorf("dbn: metadata: field %s too long (%d bytes, max %d)", field, len(v), size-1)
	}
	b := make([]byte, size)
	copy(b, v)
	buf.Write(b)
	return nil
}
