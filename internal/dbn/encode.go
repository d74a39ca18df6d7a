package dbn

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encode serializes a record to its fixed wire layout. The header length
// and rtype bytes are derived from the concrete type, so callers only
// need to fill publisher, instrument, and timestamp.
func Encode(rec Record) ([]byte, error) {
	switch m := rec.(type) {
	case TradeMsg:
		b := newBuf(TradeMsgSize, RTypeMbp0, m.Header)
		putPrice(b, 16, m.Price)
		pu32(b, 24, m.Size)
		b[28], b[29], b[30], b[31] = m.Action, m.Side, m.Flags, m.Depth
		pu64(b, 32, m.TsRecv)
		pi32(b, 40, m.TsInDelta)
		pu32(b, 44, m.Sequence)
		return b, nil

	case MboMsg:
		b := newBuf(MboMsgSize, RTypeMbo, m.Header)
		pu64(b, 16, m.OrderID)
		putPrice(b, 24, m.Price)
		pu32(b, 32, m.Size)
		b[36], b[37], b[38], b[39] = m.Flags, m.ChannelID, m.Action, m.Side
		pu64(b, 40, m.TsRecv)
		pi32(b, 48, m.TsInDelta)
		pu32(b, 52, m.Sequence)
		return b, nil

	case Mbp1Msg:
		b := newBuf(Mbp1MsgSize, RTypeMbp1, m.Header)
		putPrice(b, 16, m.Price)
		pu32(b, 24, m.Size)
		b[28], b[29], b[30], b[31] = m.Action, m.Side, m.Flags, m.Depth
		pu64(b, 32, m.TsRecv)
		pi32(b, 40, m.TsInDelta)
		pu32(b, 44, m.Sequence)
		putLevel(b, 48, m.Levels[0])
		return b, nil

	case Mbp10Msg:
		b := newBuf(Mbp10MsgSize, RTypeMbp10, m.Header)
		putPrice(b, 16, m.Price)
		pu32(b, 24, m.Size)
		b[28], b[29], b[30], b[31] = m.Action, m.Side, m.Flags, m.Depth
		pu64(b, 32, m.TsRecv)
		pi32(b, 40, m.TsInDelta)
		pu32(b, 44, m.Sequence)
		for i, lvl := range m.Levels {
			putLevel(b, 48+i*32, lvl)
		}
		return b, nil

	case BboMsg:
		rt := m.RType
		if rt != RTypeBbo1S && rt != RTypeBbo1M {
			rt = RTypeBbo1S
		}
		b := newBuf(BboMsgSize, rt, m.Header)
		putPrice(b, 16, m.Price)
		pu32(b, 24, m.Size)
		b[29], b[30] = m.Side, m.Flags
		pu64(b, 32, m.TsRecv)
		pu32(b, 44, m.Sequence)
		putLevel(b, 48, m.Levels[0])
		return b, nil

	case CbboMsg:
		rt := m.RType
		if rt != RTypeCbbo1S && rt != RTypeCbbo1M && rt != RTypeTcbbo {
			rt = RTypeCbbo1S
		}
		b := newBuf(CbboMsgSize, rt, m.Header)
		putPrice(b, 16, m.Price)
		pu32(b, 24, m.Size)
		b[28], b[29], b[30] = m.Action, m.Side, m.Flags
		pu64(b, 32, m.TsRecv)
		putConsolidatedLevel(b, 48, m.Levels[0])
		return b, nil

	case Cmbp1Msg:
		b := newBuf(Cmbp1MsgSize, RTypeCmbp1, m.Header)
		putPrice(b, 16, m.Price)
		pu32(b, 24, m.Size)
		b[28], b[29], b[30] = m.Action, m.Side, m.Flags
		pu64(b, 32, m.TsRecv)
		pi32(b, 40, m.TsInDelta)
		putConsolidatedLevel(b, 48, m.Levels[0])
		return b, nil

	case OhlcvMsg:
		rt := m.RType
		switch rt {
		case RTypeOhlcv1S, RTypeOhlcv1M, RTypeOhlcv1H, RTypeOhlcv1D, RTypeOhlcvEod:
		default:
			rt = RTypeOhlcv1S
		}
		b := newBuf(OhlcvMsgSize, rt, m.Header)
		putPrice(b, 16, m.Open)
		putPrice(b, 24, m.High)
		putPrice(b, 32, m.Low)
		putPrice(b, 40, m.Close)
		pu64(b, 48, m.Volume)
		return b, nil

	case StatusMsg:
		b := newBuf(StatusMsgSize, RTypeStatus, m.Header)
		pu64(b, 16, m.TsRecv)
		pu16(b, 24, m.Action)
		pu16(b, 26, m.Reason)
		pu16(b, 28, m.TradingEvent)
		b[30], b[31], b[32] = m.IsTrading, m.IsQuoting, m.IsShortSellRestricted
		return b, nil

	case ImbalanceMsg:
		b := newBuf(ImbalanceMsgSize, RTypeImbalance, m.Header)
		pu64(b, 16, m.TsRecv)
		putPrice(b, 24, m.RefPrice)
		pu64(b, 32, m.AuctionTime)
		putPrice(b, 40, m.ContBookClrPrice)
		putPrice(b, 48, m.AuctInterestClrPrice)
		putPrice(b, 56, m.SsrFillingPrice)
		putPrice(b, 64, m.IndMatchPrice)
		putPrice(b, 72, m.UpperCollar)
		putPrice(b, 80, m.LowerCollar)
		pu32(b, 88, m.PairedQty)
		pu32(b, 92, m.TotalImbalanceQty)
		pu32(b, 96, m.MarketImbalanceQty)
		pu32(b, 100, m.UnpairedQty)
		b[104], b[105], b[106] = m.AuctionType, m.Side, m.AuctionStatus
		b[107], b[108], b[109] = m.FreezeStatus, m.NumExtensions, m.UnpairedSide
		b[110] = m.SignificantImbalance
		return b, nil

	case ErrorMsg:
		b := newBuf(ErrorMsgSize, RTypeError, m.Header)
		if err := putCstr(b, 16, 302, m.Err, "err"); err != nil {
			return nil, err
		}
		b[318], b[319] = m.Code, m.IsLast
		return b, nil

	case SymbolMappingMsg:
		b := newBuf(SymbolMappingSize, RTypeSymbolMapping, m.Header)
		b[16] = m.STypeIn
		if err := putCstr(b, 17, 71, m.STypeInSymbol, "stype_in_symbol"); err != nil {
			return nil, err
		}
		b[88] = m.STypeOut
		if err := putCstr(b, 89, 71, m.STypeOutSymbol, "stype_out_symbol"); err != nil {
			return nil, err
		}
		pu64(b, 160, m.StartTs)
		pu64(b, 168, m.EndTs)
		return b, nil

	case SystemMsg:
		b := newBuf(SystemMsgSize, RTypeSystem, m.Header)
		if err := putCstr(b, 16, 303, m.Msg, "msg"); err != nil {
			return nil, err
		}
		b[319] = m.Code
		return b, nil

	case StatMsg:
		b := newBuf(StatMsgSize, RTypeStatistics, m.Header)
		pu64(b, 16, m.TsRecv)
		pu64(b, 24, m.TsRef)
		putPrice(b, 32, m.Price)
		pi32(b, 40, m.Quantity)
		pu32(b, 44, m.Sequence)
		pi32(b, 48, m.TsInDelta)
		pu16(b, 52, m.StatType)
		pu16(b, 54, m.ChannelID)
		b[56], b[57] = m.UpdateAction, m.StatFlags
		return b, nil

	case InstrumentDefMsg:
		return encodeInstrumentDef(m)

	case UnknownMsg:
		return bytes.Clone(m.Raw), nil
	}
	return nil, fmt.Errorf("dbn: encode: unsupported record type %T", rec)
}

func encodeInstrumentDef(m InstrumentDefMsg) ([]byte, error) {
	b := newBuf(InstrumentDefSize, RTypeInstrumentDef, m.Header)
	pu64(b, 16, m.TsRecv)
	putPrice(b, 24, m.MinPriceIncrement)
	pi64(b, 32, m.DisplayFactor)
	pu64(b, 40, m.Expiration)
	pu64(b, 48, m.Activation)
	putPrice(b, 56, m.HighLimitPrice)
	putPrice(b, 64, m.LowLimitPrice)
	putPrice(b, 72, m.MaxPriceVariation)
	pi64(b, 80, m.UnitOfMeasureQty)
	putPrice(b, 88, m.MinPriceIncrementAmount)
	putPrice(b, 96, m.PriceRatio)
	putPrice(b, 104, m.StrikePrice)
	pi32(b, 112, m.InstAttribValue)
	pu32(b, 116, m.UnderlyingID)
	pu64(b, 120, m.RawInstrumentID)
	pi32(b, 128, m.MarketDepthImplied)
	pi32(b, 132, m.MarketDepth)
	pu32(b, 136, m.MarketSegmentID)
	pu32(b, 140, m.MaxTradeVol)
	pi32(b, 144, m.MinLotSize)
	pi32(b, 148, m.MinLotSizeBlock)
	pi32(b, 152, m.MinLotSizeRoundLot)
	pu32(b, 156, m.MinTradeVol)
	pi32(b, 160, m.ContractMultiplier)
	pi32(b, 164, m.DecayQuantity)
	pi32(b, 168, m.OriginalContractSize)
	pu16(b, 172, uint16(m.AppID))
	pu16(b, 174, m.MaturityYear)
	pu16(b, 176, m.DecayStartDate)
	pu16(b, 178, m.ChannelID)
	for _, f := range []struct {
		val  string
		off  int
		size int
		name string
	}{
		{m.Currency, 180, 4, "currency"},
		{m.SettlCurrency, 184, 4, "settl_currency"},
		{m.SecSubType, 188, 6, "secsubtype"},
		{m.RawSymbol, 194, 71, "raw_symbol"},
		{m.Group, 265, 21, "group"},
		{m.Exchange, 286, 5, "exchange"},
		{m.Asset, 291, 11, "asset"},
		{m.Cfi, 302, 7, "cfi"},
		{m.SecurityType, 309, 7, "security_type"},
		{m.UnitOfMeasure, 316, 31, "unit_of_measure"},
		{m.Underlying, 347, 21, "underlying"},
		{m.StrikePriceCurrency, 368, 4, "strike_price_currency"},
	} {
		if err := putCstr(b, f.off, f.size, f.val, f.name); err != nil {
			return nil, err
		}
	}
	b[372], b[373], b[374] = m.InstrumentClass, m.MatchAlgorithm, m.MainFraction
	b[375], b[376], b[377] = m.PriceDisplayFormat, m.SubFraction, m.UnderlyingProduct
	b[378], b[379], b[380] = m.SecurityUpdateAction, m.MaturityMonth, m.MaturityDay
	b[381], b[382] = m.MaturityWeek, m.UserDefinedInstrument
	b[383] = uint8(m.ContractMultiplierUnit)
	b[384] = uint8(m.FlowScheduleType)
	b[385] = m.TickRule
	return b, nil
}

func newBuf(size int, rt RType, h Header) []byte {
	b := make([]byte, size)
	b[0] = uint8(size / 4)
	b[1] = uint8(rt)
	pu16(b, 2, h.PublisherID)
	pu32(b, 4, h.InstrumentID)
	pu64(b, 8, h.TsEvent)
	return b
}

func putLevel(b []byte, off int, lvl BidAskPair) {
	putPrice(b, off, lvl.BidPx)
	putPrice(b, off+8, lvl.AskPx)
	pu32(b, off+16, lvl.BidSz)
	pu32(b, off+20, lvl.AskSz)
	pu32(b, off+24, lvl.BidCt)
	pu32(b, off+28, lvl.AskCt)
}

func putConsolidatedLevel(b []byte, off int, lvl ConsolidatedBidAskPair) {
	putPrice(b, off, lvl.BidPx)
	putPrice(b, off+8, lvl.AskPx)
	pu32(b, off+16, lvl.BidSz)
	pu32(b, off+20, lvl.AskSz)
	pu16(b, off+24, lvl.BidPb)
	pu16(b, off+26, lvl.AskPb)
}

func pu16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:], v) }
func pu32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }
func pu64(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:], v) }
func pi32(b []byte, off int, v int32)  { binary.LittleEndian.PutUint32(b[off:], uint32(v)) }
func pi64(b []byte, off int, v int64)  { binary.LittleEndian.PutUint64(b[off:], uint64(v)) }
func putPrice(b []byte, off int, p Price) {
	binary.LittleEndian.PutUint64(b[off:], uint64(p))
}

// putCstr writes a NUL-padded fixed-width string field. The value must
// leave room for at least one NUL.
func putCstr(b []byte, off, size int, v, field string) error {
	if len(v) >= size {
		return fmt.Errorf("dbn: encode: field %s too long (%d bytes, max %d)", field, len(v), size-1)
	}
	copy(b[off:off+size], v)
	return nil
}
