package dbn

import (
	"bytes"
	"reflect"
	"sync"
	"testing"
)

func TestDecode_MinimumSizeBoundary(t *testing.T) {
	// Exactly the minimum size decodes; one byte shorter fails.
	for rt, size := range recordSizes {
		buf := make([]byte, size)
		buf[0] = uint8(size / 4)
		buf[1] = uint8(rt)

		rec, err := Decode(buf, rt)
		if err != nil {
			t.Errorf("Decode(%s, %d bytes) error: %v", rt, size, err)
			continue
		}
		if rec.Head().RType != rt {
			t.Errorf("Decode(%s) header rtype = %s", rt, rec.Head().RType)
		}

		if _, err := Decode(buf[:size-1], rt); err == nil {
			t.Errorf("Decode(%s, %d bytes) expected DecodeError", rt, size-1)
		} else if _, ok := err.(*DecodeError); !ok {
			t.Errorf("Decode(%s) error type = %T, want *DecodeError", rt, err)
		}
	}
}

func TestDecode_TrailingBytesIgnored(t *testing.T) {
	m := TradeMsg{
		Header:   Header{PublisherID: 1, InstrumentID: 11667, TsEvent: 1704186000000000000},
		Price:    Price(490_050_000_000),
		Size:     100,
		Action:   'T',
		Side:     'B',
		Sequence: 42,
	}
	b, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Pad with extra bytes a newer format version might append.
	padded := append(b, 0xDE, 0xAD, 0xBE, 0xEF)

	rec, err := Decode(padded, RTypeMbp0)
	if err != nil {
		t.Fatalf("Decode with trailing bytes: %v", err)
	}
	trade := rec.(TradeMsg)
	if trade.Price != m.Price || trade.Size != m.Size || trade.Sequence != m.Sequence {
		t.Errorf("decoded trade = %+v, want fields of %+v", trade, m)
	}
}

func TestDecode_UnknownTagIsNotAnError(t *testing.T) {
	buf := make([]byte, 24)
	buf[0] = 6
	buf[1] = 0x7F
	pu32(buf, 4, 9999)

	rec, err := Decode(buf, RType(0x7F))
	if err != nil {
		t.Fatalf("Decode(unknown tag): %v", err)
	}
	unk, ok := rec.(UnknownMsg)
	if !ok {
		t.Fatalf("record type = %T, want UnknownMsg", rec)
	}
	if unk.TagByte != 0x7F {
		t.Errorf("TagByte = 0x%02X, want 0x7F", unk.TagByte)
	}
	if unk.InstrumentID != 9999 {
		t.Errorf("InstrumentID = %d, want 9999", unk.InstrumentID)
	}
	if !bytes.Equal(unk.Raw, buf) {
		t.Errorf("Raw does not match input bytes")
	}

	// The raw bytes must be a copy, never an alias of the caller's buffer.
	buf[4] = 0xFF
	if bytes.Equal(unk.Raw, buf) {
		t.Errorf("Raw aliases the input buffer")
	}
}

func TestDecode_UnknownTagShortBuffer(t *testing.T) {
	rec, err := Decode([]byte{0x01, 0x7F}, RType(0x7F))
	if err != nil {
		t.Fatalf("Decode(short unknown): %v", err)
	}
	unk := rec.(UnknownMsg)
	if unk.Header != (Header{}) {
		t.Errorf("short unknown record should carry a zero header")
	}
}

func TestDecode_UnterminatedSymbolFails(t *testing.T) {
	buf := make([]byte, SymbolMappingSize)
	buf[0] = uint8(SymbolMappingSize / 4)
	buf[1] = uint8(RTypeSymbolMapping)
	// Fill stype_in_symbol with no NUL anywhere in its window.
	for i := 17; i < 17+71; i++ {
		buf[i] = 'A'
	}

	_, err := Decode(buf, RTypeSymbolMapping)
	if err == nil {
		t.Fatal("expected DecodeError for unterminated symbol")
	}
	if _, ok := err.(*DecodeError); !ok {
		t.Errorf("error type = %T, want *DecodeError", err)
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	hd := Header{PublisherID: 2, InstrumentID: 11667, TsEvent: 1704186000000000000}
	records := []Record{
		TradeMsg{
			Header: hd, Price: Price(490_050_000_000), Size: 75,
			Action: 'T', Side: 'A', Flags: 130, Depth: 0,
			TsRecv: 1704186000000001000, TsInDelta: 1000, Sequence: 7,
		},
		MboMsg{
			Header: hd, OrderID: 123456789, Price: Price(100_000_000_000), Size: 10,
			Flags: 128, ChannelID: 1, Action: 'A', Side: 'B',
			TsRecv: 1704186000000002000, TsInDelta: -500, Sequence: 8,
		},
		Mbp1Msg{
			Header: hd, Price: Price(490_000_000_000), Size: 5,
			Action: 'M', Side: 'B', Sequence: 9,
			Levels: [1]BidAskPair{{
				BidPx: Price(489_990_000_000), AskPx: Price(490_010_000_000),
				BidSz: 12, AskSz: 9, BidCt: 3, AskCt: 2,
			}},
		},
		OhlcvMsg{
			Header: Header{RType: RTypeOhlcv1M, PublisherID: 2, InstrumentID: 11667},
			Open:   Price(489_000_000_000), High: Price(491_000_000_000),
			Low: Price(488_500_000_000), Close: Price(490_050_000_000), Volume: 42000,
		},
		StatusMsg{
			Header: hd, TsRecv: 1704186000000003000,
			Action: 2, Reason: 1, TradingEvent: 3, IsTrading: 'Y', IsQuoting: 'Y',
		},
		ImbalanceMsg{
			Header: hd, TsRecv: 1704186000000004000, RefPrice: Price(490_000_000_000),
			ContBookClrPrice: UndefPrice, AuctInterestClrPrice: UndefPrice,
			SsrFillingPrice: UndefPrice, IndMatchPrice: UndefPrice,
			UpperCollar: UndefPrice, LowerCollar: UndefPrice,
			PairedQty: 1000, TotalImbalanceQty: 250,
			AuctionType: 'O', Side: 'B',
		},
		ErrorMsg{Header: hd, Err: "authentication failed", Code: 2, IsLast: 1},
		SymbolMappingMsg{
			Header: hd, STypeIn: 0, STypeInSymbol: "NVDA",
			STypeOut: 1, STypeOutSymbol: "11667",
			StartTs: 1704153600000000000, EndTs: 1704240000000000000,
		},
		SystemMsg{Header: hd, Msg: "Heartbeat", Code: 0},
		StatMsg{
			Header: hd, TsRecv: 1704186000000005000, TsRef: UndefTimestamp,
			Price: Price(490_050_000_000), Quantity: 55, Sequence: 10,
			StatType: 1, ChannelID: 0, UpdateAction: 1,
		},
		BboMsg{
			Header: Header{RType: RTypeBbo1S, PublisherID: 2, InstrumentID: 11667},
			Price:  Price(490_050_000_000), Size: 20, Side: 'A', Sequence: 11,
			Levels: [1]BidAskPair{{BidPx: Price(490_000_000_000), AskPx: Price(490_100_000_000)}},
		},
		CbboMsg{
			Header: Header{RType: RTypeCbbo1S, PublisherID: 2, InstrumentID: 11667},
			Price:  Price(490_050_000_000), Size: 15, Action: 'M', Side: 'B',
			Levels: [1]ConsolidatedBidAskPair{{
				BidPx: Price(490_000_000_000), AskPx: Price(490_100_000_000),
				BidSz: 4, AskSz: 6, BidPb: 2, AskPb: 40,
			}},
		},
		Cmbp1Msg{
			Header: hd, Price: Price(490_050_000_000), Size: 30,
			Action: 'A', Side: 'A', TsInDelta: 200,
			Levels: [1]ConsolidatedBidAskPair{{BidPx: UndefPrice, AskPx: UndefPrice}},
		},
		InstrumentDefMsg{
			Header: hd, TsRecv: 1704186000000006000,
			MinPriceIncrement: Price(10_000_000), DisplayFactor: 1,
			Expiration: 1735689600000000000, Activation: 1704067200000000000,
			HighLimitPrice: UndefPrice, LowLimitPrice: UndefPrice,
			MaxPriceVariation: UndefPrice, MinPriceIncrementAmount: UndefPrice,
			PriceRatio: UndefPrice, StrikePrice: UndefPrice,
			RawInstrumentID: 11667, MarketDepth: 10, MinLotSize: 1,
			Currency: "USD", RawSymbol: "NVDA", Exchange: "XNAS", Asset: "NVDA",
			SecurityType: "CS", InstrumentClass: 'K', MatchAlgorithm: 'F',
			MaturityYear: 2025,
		},
	}

	for _, rec := range records {
		rt := rec.Head().RType
		b, err := Encode(rec)
		if err != nil {
			t.Fatalf("Encode(%T): %v", rec, err)
		}
		got, err := Decode(b, RType(b[1]))
		if err != nil {
			t.Fatalf("Decode(%T): %v", rec, err)
		}
		// Encode derives the length and rtype header bytes; mirror that on
		// the expectation before comparing.
		want := withWireHeader(rec, b)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip %s:\n got  %+v\n want %+v", rt, got, want)
		}
	}
}

// withWireHeader returns rec with Length and RType set to the values the
// encoder wrote.
func withWireHeader(rec Record, wire []byte) Record {
	v := reflect.ValueOf(rec)
	out := reflect.New(v.Type()).Elem()
	out.Set(v)
	hd := out.FieldByName("Header")
	hd.FieldByName("Length").SetUint(uint64(wire[0]))
	hd.FieldByName("RType").SetUint(uint64(wire[1]))
	return out.Interface().(Record)
}

func TestDecode_ConcurrentUse(t *testing.T) {
	m := TradeMsg{Header: Header{InstrumentID: 1}, Price: Price(1_000_000_000), Size: 1}
	b, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if _, err := Decode(b, RTypeMbp0); err != nil {
					t.Errorf("Decode: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
