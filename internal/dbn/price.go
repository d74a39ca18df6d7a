package dbn

import (
	"fmt"
	"math"
	"strings"
)

// PriceScale is the fixed-point denominator: prices are signed 64-bit
// integers counting units of 1e-9.
const PriceScale = 1_000_000_000

// UndefPrice is the sentinel for an undefined price. It must be preserved
// as-is, never coerced to zero.
const UndefPrice = Price(math.MaxInt64)

// UndefTimestamp is the sentinel for an undefined nanosecond timestamp.
const UndefTimestamp = uint64(math.MaxUint64)

// Price is a fixed-point price with nine implied decimal places.
type Price int64

// IsUndef reports whether the price carries the undefined sentinel.
func (p Price) IsUndef() bool {
	return p == UndefPrice
}

// Float64 converts to a float via a single division. Returns NaN for the
// undefined sentinel.
func (p Price) Float64() float64 {
	if p.IsUndef() {
		return math.NaN()
	}
	return float64(p) / PriceScale
}

// String formats the exact decimal value, trimming trailing zeros.
// 490050000000 renders as "490.05".
func (p Price) String() string {
	if p.IsUndef() {
		return "UNDEF_PRICE"
	}
	v := int64(p)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / PriceScale
	frac := v % PriceScale
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	s := strings.TrimRight(fmt.Sprintf("%09d", frac), "0")
	return fmt.Sprintf("%s%d.%s", sign, whole, s)
}
