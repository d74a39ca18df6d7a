package symbology

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Alparse/databento-client-sub000/internal/dbn"
)

// ErrSymbolNotFound is returned when a lookup has no mapping.
var ErrSymbolNotFound = errors.New("symbology: symbol not found")

// tsKey identifies one instrument on one trading date.
type tsKey struct {
	date uint32 // YYYYMMDD
	iid  uint32
}

// TsSymbolMap answers date-aware instrument-id lookups. It is built once
// from metadata mappings and immutable afterward, so it is safe for
// concurrent readers.
type TsSymbolMap struct {
	m map[tsKey]string
}

// NewTsSymbolMap expands metadata mapping intervals into per-date
// entries. Each interval is half-open: the start date is covered, the
// end date is not. Interval symbols must parse as instrument ids.
func NewTsSymbolMap(meta *dbn.Metadata) (*TsSymbolMap, error) {
	ts := &TsSymbolMap{m: make(map[tsKey]string)}
	for _, mapping := range meta.Mappings {
		for _, iv := range mapping.Intervals {
			if iv.Symbol == "" {
				// Gap in the mapping history: the symbol did not resolve
				// over this interval.
				continue
			}
			iid, err := strconv.ParseUint(iv.Symbol, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("symbology: mapping for %q: interval symbol %q is not an instrument id: %w",
					mapping.RawSymbol, iv.Symbol, err)
			}
			start, err := parseDate(iv.StartDate)
			if err != nil {
				return nil, fmt.Errorf("symbology: mapping for %q: %w", mapping.RawSymbol, err)
			}
			end, err := parseDate(iv.EndDate)
			if err != nil {
				return nil, fmt.Errorf("symbology: mapping for %q: %w", mapping.RawSymbol, err)
			}
			for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
				ts.m[tsKey{date: dateKey(d), iid: uint32(iid)}] = mapping.RawSymbol
			}
		}
	}
	return ts, nil
}

// Find returns the symbol for an instrument id on the given date, or
// false if the date falls outside every mapping interval.
func (ts *TsSymbolMap) Find(date time.Time, instrumentID uint32) (string, bool) {
	sym, ok := ts.m[tsKey{date: dateKey(date), iid: instrumentID}]
	return sym, ok
}

// At is Find with a hard failure when no mapping covers the date.
func (ts *TsSymbolMap) At(date time.Time, instrumentID uint32) (string, error) {
	sym, ok := ts.Find(date, instrumentID)
	if !ok {
		return "", fmt.Errorf("%w: instrument %d on %s",
			ErrSymbolNotFound, instrumentID, date.Format("2006-01-02"))
	}
	return sym, nil
}

// Len returns the number of per-date entries.
func (ts *TsSymbolMap) Len() int {
	return len(ts.m)
}

func dateKey(t time.Time) uint32 {
	y, m, d := t.Date()
	return uint32(y)*10000 + uint32(m)*100 + uint32(d)
}

func parseDate(yyyymmdd uint32) (time.Time, error) {
	y := int(yyyymmdd / 10000)
	m := time.Month(yyyymmdd / 100 % 100)
	d := int(yyyymmdd % 100)
	if m < time.January || m > time.December || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("invalid date %d", yyyymmdd)
	}
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
