package symbology

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Alparse/databento-client-sub000/internal/dbn"
)

// PitSymbolMap is a point-in-time instrument-id lookup for a single
// session. It starts empty and learns mappings from SymbolMapping
// records as they arrive; every other record variant is ignored.
type PitSymbolMap struct {
	mu sync.RWMutex
	m  map[uint32]string
}

// NewPitSymbolMap creates an empty point-in-time map.
func NewPitSymbolMap() *PitSymbolMap {
	return &PitSymbolMap{m: make(map[uint32]string)}
}

// NewPitSymbolMapFromMetadata seeds a map with every mapping interval
// covering the given date.
func NewPitSymbolMapFromMetadata(meta *dbn.Metadata, date time.Time) (*PitSymbolMap, error) {
	p := NewPitSymbolMap()
	key := dateKey(date)
	for _, mapping := range meta.Mappings {
		for _, iv := range mapping.Intervals {
			if iv.Symbol == "" || key < iv.StartDate || key >= iv.EndDate {
				continue
			}
			iid, err := strconv.ParseUint(iv.Symbol, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("symbology: mapping for %q: interval symbol %q is not an instrument id: %w",
					mapping.RawSymbol, iv.Symbol, err)
			}
			p.m[uint32(iid)] = mapping.RawSymbol
		}
	}
	return p, nil
}

// OnRecord updates the map when rec is a SymbolMapping record and is a
// no-op for everything else, so it can sit directly on a record drain
// loop.
func (p *PitSymbolMap) OnRecord(rec dbn.Record) {
	sm, ok := rec.(dbn.SymbolMappingMsg)
	if !ok {
		return
	}
	sym := sm.STypeOutSymbol
	if sym == "" {
		sym = sm.STypeInSymbol
	}
	p.mu.Lock()
	p.m[sm.InstrumentID] = sym
	p.mu.Unlock()
}

// Find returns the symbol currently mapped to an instrument id.
func (p *PitSymbolMap) Find(instrumentID uint32) (string, bool) {
	p.mu.RLock()
	sym, ok := p.m[instrumentID]
	p.mu.RUnlock()
	return sym, ok
}

// Len returns the number of known instruments.
func (p *PitSymbolMap) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}
