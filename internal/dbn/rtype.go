package dbn

import "fmt"

// RType is the one-byte tag identifying a record's concrete type.
type RType uint8

// Record type tags.
const (
	RTypeMbp0          RType = 0x00 // Trade (market-by-price depth 0)
	RTypeMbp1          RType = 0x01
	RTypeMbp10         RType = 0x02
	RTypeOhlcv1S       RType = 0x12
	RTypeOhlcv1M       RType = 0x13
	RTypeOhlcv1H       RType = 0x14
	RTypeOhlcv1D       RType = 0x15
	RTypeOhlcvEod      RType = 0x16
	RTypeStatus        RType = 0x17
	RTypeInstrumentDef RType = 0x18
	RTypeImbalance     RType = 0x19
	RTypeError         RType = 0x1A
	RTypeSymbolMapping RType = 0x1B
	RTypeSystem        RType = 0x1C
	RTypeStatistics    RType = 0x1D
	RTypeMbo           RType = 0xA0
	RTypeCmbp1         RType = 0xB1
	RTypeCbbo1S        RType = 0xB2
	RTypeCbbo1M        RType = 0xB3
	RTypeTcbbo         RType = 0xB4
	RTypeBbo1S         RType = 0xC2
	RTypeBbo1M         RType = 0xC3
)

// Fixed record sizes in bytes, header included. Buffers may be larger
// (trailing bytes are ignored for forward compatibility) but never smaller.
const (
	HeaderSize        = 16
	TradeMsgSize      = 48
	Mbp1MsgSize       = 80
	Mbp10MsgSize      = 368
	OhlcvMsgSize      = 56
	StatusMsgSize     = 40
	InstrumentDefSize = 520
	ImbalanceMsgSize  = 112
	ErrorMsgSize      = 320
	SymbolMappingSize = 176
	SystemMsgSize     = 320
	StatMsgSize       = 64
	MboMsgSize        = 56
	Cmbp1MsgSize      = 80
	CbboMsgSize       = 80
	BboMsgSize        = 80
)

// recordSizes maps every known tag to its fixed minimum size.
var recordSizes = map[RType]int{
	RTypeMbp0:          TradeMsgSize,
	RTypeMbp1:          Mbp1MsgSize,
	RTypeMbp10:         Mbp10MsgSize,
	RTypeOhlcv1S:       OhlcvMsgSize,
	RTypeOhlcv1M:       OhlcvMsgSize,
	RTypeOhlcv1H:       OhlcvMsgSize,
	RTypeOhlcv1D:       OhlcvMsgSize,
	RTypeOhlcvEod:      OhlcvMsgSize,
	RTypeStatus:        StatusMsgSize,
	RTypeInstrumentDef: InstrumentDefSize,
	RTypeImbalance:     ImbalanceMsgSize,
	RTypeError:         ErrorMsgSize,
	RTypeSymbolMapping: SymbolMappingSize,
	RTypeSystem:        SystemMsgSize,
	RTypeStatistics:    StatMsgSize,
	RTypeMbo:           MboMsgSize,
	RTypeCmbp1:         Cmbp1MsgSize,
	RTypeCbbo1S:        CbboMsgSize,
	RTypeCbbo1M:        CbboMsgSize,
	RTypeTcbbo:         CbboMsgSize,
	RTypeBbo1S:         BboMsgSize,
	RTypeBbo1M:         BboMsgSize,
}

// MinSize returns the minimum buffer size for a tag and whether the tag
// is known. Unknown tags have no minimum; they decode to UnknownMsg.
func MinSize(rt RType) (int, bool) {
	n, ok := recordSizes[rt]
	return n, ok
}

// IsKnown reports whether rt is a recognized record type tag.
func IsKnown(rt RType) bool {
	_, ok := recordSizes[rt]
	return ok
}

// String returns the conventional schema-style name for the tag.
func (rt RType) String() string {
	switch rt {
	case RTypeMbp0:
		return "trades"
	case RTypeMbp1:
		return "mbp-1"
	case RTypeMbp10:
		return "mbp-10"
	case RTypeOhlcv1S:
		return "ohlcv-1s"
	case RTypeOhlcv1M:
		return "ohlcv-1m"
	case RTypeOhlcv1H:
		return "ohlcv-1h"
	case RTypeOhlcv1D:
		return "ohlcv-1d"
	case RTypeOhlcvEod:
		return "ohlcv-eod"
	case RTypeStatus:
		return "status"
	case RTypeInstrumentDef:
		return "definition"
	case RTypeImbalance:
		return "imbalance"
	case RTypeError:
		return "error"
	case RTypeSymbolMapping:
		return "symbol_mapping"
	case RTypeSystem:
		return "system"
	case RTypeStatistics:
		return "statistics"
	case RTypeMbo:
		return "mbo"
	case RTypeCmbp1:
		return "cmbp-1"
	case RTypeCbbo1S:
		return "cbbo-1s"
	case RTypeCbbo1M:
		return "cbbo-1m"
	case RTypeTcbbo:
		return "tcbbo"
	case RTypeBbo1S:
		return "bbo-1s"
	case RTypeBbo1M:
		return "bbo-1m"
	}
	return fmt.Sprintf("unknown(0x%02X)", uint8(rt))
}
