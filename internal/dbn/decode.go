package dbn

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DecodeError reports a malformed or truncated record buffer. It is local
// to the one record; it never implies anything about the rest of a stream.
type DecodeError struct {
	RType  RType
	Have   int
	Want   int
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("dbn: decode %s: %s", e.RType, e.Reason)
	}
	return fmt.Sprintf("dbn: decode %s: buffer %d bytes, need %d", e.RType, e.Have, e.Want)
}

// decodeFunc decodes a validated buffer (length already checked against
// the type's minimum) into its record.
type decodeFunc func(b []byte) (Record, error)

// One dispatch table keyed by tag byte, not nested conditionals.
var decodeTable = map[RType]decodeFunc{
	RTypeMbp0:          decodeTrade,
	RTypeMbp1:          decodeMbp1,
	RTypeMbp10:         decodeMbp10,
	RTypeOhlcv1S:       decodeOhlcv,
	RTypeOhlcv1M:       decodeOhlcv,
	RTypeOhlcv1H:       decodeOhlcv,
	RTypeOhlcv1D:       decodeOhlcv,
	RTypeOhlcvEod:      decodeOhlcv,
	RTypeStatus:        decodeStatus,
	RTypeInstrumentDef: decodeInstrumentDef,
	RTypeImbalance:     decodeImbalance,
	RTypeError:         decodeError,
	RTypeSymbolMapping: decodeSymbolMapping,
	RTypeSystem:        decodeSystem,
	RTypeStatistics:    decodeStat,
	RTypeMbo:           decodeMbo,
	RTypeCmbp1:         decodeCmbp1,
	RTypeCbbo1S:        decodeCbbo,
	RTypeCbbo1M:        decodeCbbo,
	RTypeTcbbo:         decodeCbbo,
	RTypeBbo1S:         decodeBbo,
	RTypeBbo1M:         decodeBbo,
}

// Decode interprets data as a record tagged rtype. Buffers at least the
// type's minimum size decode successfully with trailing bytes ignored;
// shorter buffers fail with *DecodeError. An unrecognized tag is not a
// failure: it decodes to UnknownMsg wrapping a copy of the bytes. Decode
// never retains data.
func Decode(data []byte, rtype RType) (Record, error) {
	fn, ok := decodeTable[rtype]
	if !ok {
		return decodeUnknown(data, rtype), nil
	}
	min := recordSizes[rtype]
	if len(data) < min {
		return nil, &DecodeError{RType: rtype, Have: len(data), Want: min}
	}
	return fn(data)
}

func decodeHeader(b []byte) Header {
	return Header{
		Length:       b[0],
		RType:        RType(b[1]),
		PublisherID:  u16(b, 2),
		InstrumentID: u32(b, 4),
		TsEvent:      u64(b, 8),
	}
}

func decodeUnknown(data []byte, rtype RType) UnknownMsg {
	m := UnknownMsg{
		TagByte: uint8(rtype),
		Raw:     bytes.Clone(data),
	}
	if len(data) >= HeaderSize {
		m.Header = decodeHeader(data)
	}
	return m
}

func decodeTrade(b []byte) (Record, error) {
	return TradeMsg{
		Header:    decodeHeader(b),
		Price:     price(b, 16),
		Size:      u32(b, 24),
		Action:    b[28],
		Side:      b[29],
		Flags:     b[30],
		Depth:     b[31],
		TsRecv:    u64(b, 32),
		TsInDelta: i32(b, 40),
		Sequence:  u32(b, 44),
	}, nil
}

func decodeMbo(b []byte) (Record, error) {
	return MboMsg{
		Header:    decodeHeader(b),
		OrderID:   u64(b, 16),
		Price:     price(b, 24),
		Size:      u32(b, 32),
		Flags:     b[36],
		ChannelID: b[37],
		Action:    b[38],
		Side:      b[39],
		TsRecv:    u64(b, 40),
		TsInDelta: i32(b, 48),
		Sequence:  u32(b, 52),
	}, nil
}

func decodeMbp1(b []byte) (Record, error) {
	m := Mbp1Msg{
		Header:    decodeHeader(b),
		Price:     price(b, 16),
		Size:      u32(b, 24),
		Action:    b[28],
		Side:      b[29],
		Flags:     b[30],
		Depth:     b[31],
		TsRecv:    u64(b, 32),
		TsInDelta: i32(b, 40),
		Sequence:  u32(b, 44),
	}
	m.Levels[0] = decodeLevel(b, 48)
	return m, nil
}

func decodeMbp10(b []byte) (Record, error) {
	m := Mbp10Msg{
		Header:    decodeHeader(b),
		Price:     price(b, 16),
		Size:      u32(b, 24),
		Action:    b[28],
		Side:      b[29],
		Flags:     b[30],
		Depth:     b[31],
		TsRecv:    u64(b, 32),
		TsInDelta: i32(b, 40),
		Sequence:  u32(b, 44),
	}
	for i := range m.Levels {
		m.Levels[i] = decodeLevel(b, 48+i*32)
	}
	return m, nil
}

func decodeBbo(b []byte) (Record, error) {
	m := BboMsg{
		Header:   decodeHeader(b),
		Price:    price(b, 16),
		Size:     u32(b, 24),
		Side:     b[29],
		Flags:    b[30],
		TsRecv:   u64(b, 32),
		Sequence: u32(b, 44),
	}
	m.Levels[0] = decodeLevel(b, 48)
	return m, nil
}

func decodeCbbo(b []byte) (Record, error) {
	m := CbboMsg{
		Header: decodeHeader(b),
		Price:  price(b, 16),
		Size:   u32(b, 24),
		Action: b[28],
		Side:   b[29],
		Flags:  b[30],
		TsRecv: u64(b, 32),
	}
	m.Levels[0] = decodeConsolidatedLevel(b, 48)
	return m, nil
}

func decodeCmbp1(b []byte) (Record, error) {
	m := Cmbp1Msg{
		Header:    decodeHeader(b),
		Price:     price(b, 16),
		Size:      u32(b, 24),
		Action:    b[28],
		Side:      b[29],
		Flags:     b[30],
		TsRecv:    u64(b, 32),
		TsInDelta: i32(b, 40),
	}
	m.Levels[0] = decodeConsolidatedLevel(b, 48)
	return m, nil
}

func decodeOhlcv(b []byte) (Record, error) {
	return OhlcvMsg{
		Header: decodeHeader(b),
		Open:   price(b, 16),
		High:   price(b, 24),
		Low:    price(b, 32),
		Close:  price(b, 40),
		Volume: u64(b, 48),
	}, nil
}

func decodeStatus(b []byte) (Record, error) {
	return StatusMsg{
		Header:                decodeHeader(b),
		TsRecv:                u64(b, 16),
		Action:                u16(b, 24),
		Reason:                u16(b, 26),
		TradingEvent:          u16(b, 28),
		IsTrading:             b[30],
		IsQuoting:             b[31],
		IsShortSellRestricted: b[32],
	}, nil
}

func decodeImbalance(b []byte) (Record, error) {
	return ImbalanceMsg{
		Header:               decodeHeader(b),
		TsRecv:               u64(b, 16),
		RefPrice:             price(b, 24),
		AuctionTime:          u64(b, 32),
		ContBookClrPrice:     price(b, 40),
		AuctInterestClrPrice: price(b, 48),
		SsrFillingPrice:      price(b, 56),
		IndMatchPrice:        price(b, 64),
		UpperCollar:          price(b, 72),
		LowerCollar:          price(b, 80),
		PairedQty:            u32(b, 88),
		TotalImbalanceQty:    u32(b, 92),
		MarketImbalanceQty:   u32(b, 96),
		UnpairedQty:          u32(b, 100),
		AuctionType:          b[104],
		Side:                 b[105],
		AuctionStatus:        b[106],
		FreezeStatus:         b[107],
		NumExtensions:        b[108],
		UnpairedSide:         b[109],
		SignificantImbalance: b[110],
	}, nil
}

func decodeError(b []byte) (Record, error) {
	msg, err := cstr(b, 16, 302, RTypeError, "err")
	if err != nil {
		return nil, err
	}
	return ErrorMsg{
		Header: decodeHeader(b),
		Err:    msg,
		Code:   b[318],
		IsLast: b[319],
	}, nil
}

func decodeSymbolMapping(b []byte) (Record, error) {
	inSym, err := cstr(b, 17, 71, RTypeSymbolMapping, "stype_in_symbol")
	if err != nil {
		return nil, err
	}
	outSym, err := cstr(b, 89, 71, RTypeSymbolMapping, "stype_out_symbol")
	if err != nil {
		return nil, err
	}
	return SymbolMappingMsg{
		Header:         decodeHeader(b),
		STypeIn:        b[16],
		STypeInSymbol:  inSym,
		STypeOut:       b[88],
		STypeOutSymbol: outSym,
		StartTs:        u64(b, 160),
		EndTs:          u64(b, 168),
	}, nil
}

func decodeSystem(b []byte) (Record, error) {
	msg, err := cstr(b, 16, 303, RTypeSystem, "msg")
	if err != nil {
		return nil, err
	}
	return SystemMsg{
		Header: decodeHeader(b),
		Msg:    msg,
		Code:   b[319],
	}, nil
}

func decodeStat(b []byte) (Record, error) {
	return StatMsg{
		Header:       decodeHeader(b),
		TsRecv:       u64(b, 16),
		TsRef:        u64(b, 24),
		Price:        price(b, 32),
		Quantity:     i32(b, 40),
		Sequence:     u32(b, 44),
		TsInDelta:    i32(b, 48),
		StatType:     u16(b, 52),
		ChannelID:    u16(b, 54),
		UpdateAction: b[56],
		StatFlags:    b[57],
	}, nil
}

func decodeInstrumentDef(b []byte) (Record, error) {
	m := InstrumentDefMsg{
		Header:                  decodeHeader(b),
		TsRecv:                  u64(b, 16),
		MinPriceIncrement:       price(b, 24),
		DisplayFactor:           i64(b, 32),
		Expiration:              u64(b, 40),
		Activation:              u64(b, 48),
		HighLimitPrice:          price(b, 56),
		LowLimitPrice:           price(b, 64),
		MaxPriceVariation:       price(b, 72),
		UnitOfMeasureQty:        i64(b, 80),
		MinPriceIncrementAmount: price(b, 88),
		PriceRatio:              price(b, 96),
		StrikePrice:             price(b, 104),
		InstAttribValue:         i32(b, 112),
		UnderlyingID:            u32(b, 116),
		RawInstrumentID:         u64(b, 120),
		MarketDepthImplied:      i32(b, 128),
		MarketDepth:             i32(b, 132),
		MarketSegmentID:         u32(b, 136),
		MaxTradeVol:             u32(b, 140),
		MinLotSize:              i32(b, 144),
		MinLotSizeBlock:         i32(b, 148),
		MinLotSizeRoundLot:      i32(b, 152),
		MinTradeVol:             u32(b, 156),
		ContractMultiplier:      i32(b, 160),
		DecayQuantity:           i32(b, 164),
		OriginalContractSize:    i32(b, 168),
		AppID:                   int16(u16(b, 172)),
		MaturityYear:            u16(b, 174),
		DecayStartDate:          u16(b, 176),
		ChannelID:               u16(b, 178),
		InstrumentClass:         b[372],
		MatchAlgorithm:          b[373],
		MainFraction:            b[374],
		PriceDisplayFormat:      b[375],
		SubFraction:             b[376],
		UnderlyingProduct:       b[377],
		SecurityUpdateAction:    b[378],
		MaturityMonth:           b[379],
		MaturityDay:             b[380],
		MaturityWeek:            b[381],
		UserDefinedInstrument:   b[382],
		ContractMultiplierUnit:  int8(b[383]),
		FlowScheduleType:        int8(b[384]),
		TickRule:                b[385],
	}
	var err error
	for _, f := range []struct {
		dst  *string
		off  int
		size int
		name string
	}{
		{&m.Currency, 180, 4, "currency"},
		{&m.SettlCurrency, 184, 4, "settl_currency"},
		{&m.SecSubType, 188, 6, "secsubtype"},
		{&m.RawSymbol, 194, 71, "raw_symbol"},
		{&m.Group, 265, 21, "group"},
		{&m.Exchange, 286, 5, "exchange"},
		{&m.Asset, 291, 11, "asset"},
		{&m.Cfi, 302, 7, "cfi"},
		{&m.SecurityType, 309, 7, "security_type"},
		{&m.UnitOfMeasure, 316, 31, "unit_of_measure"},
		{&m.Underlying, 347, 21, "underlying"},
		{&m.StrikePriceCurrency, 368, 4, "strike_price_currency"},
	} {
		*f.dst, err = cstr(b, f.off, f.size, RTypeInstrumentDef, f.name)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func decodeLevel(b []byte, off int) BidAskPair {
	return BidAskPair{
		BidPx: price(b, off),
		AskPx: price(b, off+8),
		BidSz: u32(b, off+16),
		AskSz: u32(b, off+20),
		BidCt: u32(b, off+24),
		AskCt: u32(b, off+28),
	}
}

func decodeConsolidatedLevel(b []byte, off int) ConsolidatedBidAskPair {
	return ConsolidatedBidAskPair{
		BidPx: price(b, off),
		AskPx: price(b, off+8),
		BidSz: u32(b, off+16),
		AskSz: u32(b, off+20),
		BidPb: u16(b, off+24),
		AskPb: u16(b, off+26),
	}
}

// Little-endian field readers.

func u16(b []byte, off int) uint16 { return binary.LittleEndian.Uint16(b[off:]) }
func u32(b []byte, off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
func u64(b []byte, off int) uint64 { return binary.LittleEndian.Uint64(b[off:]) }
func i32(b []byte, off int) int32  { return int32(binary.LittleEndian.Uint32(b[off:])) }
func i64(b []byte, off int) int64  { return int64(binary.LittleEndian.Uint64(b[off:])) }
func price(b []byte, off int) Price {
	return Price(binary.LittleEndian.Uint64(b[off:]))
}

// cstr reads a NUL-padded fixed-width string field. A field with no NUL
// anywhere in its window is malformed.
func cstr(b []byte, off, size int, rt RType, field string) (string, error) {
	window := b[off : off+size]
	i := bytes.IndexByte(window, 0)
	if i < 0 {
		return "", &DecodeError{
			RType:  rt,
			Have:   len(b),
			Want:   recordSizes[rt],
			Reason: fmt.Sprintf("field %s is not NUL-terminated", field),
		}
	}
	return string(window[:i]), nil
}
