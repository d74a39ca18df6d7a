package dbn

import (
	"math"
	"testing"
)

func TestPrice_String(t *testing.T) {
	tests := []struct {
		name string
		p    Price
		want string
	}{
		{"exact cents", Price(490_050_000_000), "490.05"},
		{"whole", Price(100_000_000_000), "100"},
		{"sub-penny", Price(1_234_567_891), "1.234567891"},
		{"negative", Price(-490_050_000_000), "-490.05"},
		{"zero", Price(0), "0"},
		{"below one", Price(50_000_000), "0.05"},
		{"undefined", UndefPrice, "UNDEF_PRICE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrice_Float64(t *testing.T) {
	if got := Price(490_050_000_000).Float64(); got != 490.05 {
		t.Errorf("Float64() = %v, want 490.05", got)
	}
	if got := UndefPrice.Float64(); !math.IsNaN(got) {
		t.Errorf("Float64() on sentinel = %v, want NaN", got)
	}
}

func TestPrice_SentinelPreserved(t *testing.T) {
	// The sentinel must survive a decode untouched, never become zero.
	m := TradeMsg{Price: UndefPrice}
	b, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	rec, err := Decode(b, RTypeMbp0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	trade := rec.(TradeMsg)
	if !trade.Price.IsUndef() {
		t.Errorf("Price = %d, want undefined sentinel", trade.Price)
	}
}
