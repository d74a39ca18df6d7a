package dbn

// Header is the common fixed-layout prefix of every record.
type Header struct {
	Length       uint8 // total record length in 4-byte units
	RType        RType
	PublisherID  uint16
	InstrumentID uint32
	TsEvent      uint64 // nanoseconds since Unix epoch, UndefTimestamp if unset
}

// Head returns the header. Defined on Header so every record type that
// embeds it satisfies Record.
func (h Header) Head() Header { return h }

// Record is the closed set of typed records produced by Decode. Concrete
// types embed Header; unrecognized tags decode to UnknownMsg.
type Record interface {
	Head() Header
}

// BidAskPair is one book level.
type BidAskPair struct {
	BidPx Price
	AskPx Price
	BidSz uint32
	AskSz uint32
	BidCt uint32
	AskCt uint32
}

// ConsolidatedBidAskPair is one consolidated book level with per-side
// publishers instead of order counts.
type ConsolidatedBidAskPair struct {
	BidPx Price
	AskPx Price
	BidSz uint32
	AskSz uint32
	BidPb uint16
	AskPb uint16
}

// TradeMsg is an executed trade (tag 0x00).
type TradeMsg struct {
	Header
	Price     Price
	Size      uint32
	Action    byte
	Side      byte
	Flags     uint8
	Depth     uint8
	TsRecv    uint64
	TsInDelta int32
	Sequence  uint32
}

// MboMsg is a market-by-order event (tag 0xA0).
type MboMsg struct {
	Header
	OrderID   uint64
	Price     Price
	Size      uint32
	Flags     uint8
	ChannelID uint8
	Action    byte
	Side      byte
	TsRecv    uint64
	TsInDelta int32
	Sequence  uint32
}

// Mbp1Msg is a top-of-book market-by-price update (tag 0x01).
type Mbp1Msg struct {
	Header
	Price     Price
	Size      uint32
	Action    byte
	Side      byte
	Flags     uint8
	Depth     uint8
	TsRecv    uint64
	TsInDelta int32
	Sequence  uint32
	Levels    [1]BidAskPair
}

// Mbp10Msg is a ten-level market-by-price update (tag 0x02).
type Mbp10Msg struct {
	Header
	Price     Price
	Size      uint32
	Action    byte
	Side      byte
	Flags     uint8
	Depth     uint8
	TsRecv    uint64
	TsInDelta int32
	Sequence  uint32
	Levels    [10]BidAskPair
}

// BboMsg is a subsampled best bid and offer (tags 0xC2, 0xC3).
type BboMsg struct {
	Header
	Price    Price
	Size     uint32
	Side     byte
	Flags    uint8
	TsRecv   uint64
	Sequence uint32
	Levels   [1]BidAskPair
}

// CbboMsg is a consolidated best bid and offer (tags 0xB2-0xB4).
type CbboMsg struct {
	Header
	Price  Price
	Size   uint32
	Action byte
	Side   byte
	Flags  uint8
	TsRecv uint64
	Levels [1]ConsolidatedBidAskPair
}

// Cmbp1Msg is a consolidated top-of-book update (tag 0xB1).
type Cmbp1Msg struct {
	Header
	Price     Price
	Size      uint32
	Action    byte
	Side      byte
	Flags     uint8
	TsRecv    uint64
	TsInDelta int32
	Levels    [1]ConsolidatedBidAskPair
}

// OhlcvMsg is an open-high-low-close-volume bar (tags 0x12-0x16).
type OhlcvMsg struct {
	Header
	Open   Price
	High   Price
	Low    Price
	Close  Price
	Volume uint64
}

// StatusMsg is a trading status update (tag 0x17).
type StatusMsg struct {
	Header
	TsRecv                uint64
	Action                uint16
	Reason                uint16
	TradingEvent          uint16
	IsTrading             byte
	IsQuoting             byte
	IsShortSellRestricted byte
}

// InstrumentDefMsg is an instrument definition (tag 0x18).
type InstrumentDefMsg struct {
	Header
	TsRecv                  uint64
	MinPriceIncrement       Price
	DisplayFactor           int64
	Expiration              uint64
	Activation              uint64
	HighLimitPrice          Price
	LowLimitPrice           Price
	MaxPriceVariation       Price
	UnitOfMeasureQty        int64
	MinPriceIncrementAmount Price
	PriceRatio              Price
	StrikePrice             Price
	InstAttribValue         int32
	UnderlyingID            uint32
	RawInstrumentID         uint64
	MarketDepthImplied      int32
	MarketDepth             int32
	MarketSegmentID         uint32
	MaxTradeVol             uint32
	MinLotSize              int32
	MinLotSizeBlock         int32
	MinLotSizeRoundLot      int32
	MinTradeVol             uint32
	ContractMultiplier      int32
	DecayQuantity           int32
	OriginalContractSize    int32
	AppID                   int16
	MaturityYear            uint16
	DecayStartDate          uint16
	ChannelID               uint16
	Currency                string
	SettlCurrency           string
	SecSubType              string
	RawSymbol               string
	Group                   string
	Exchange                string
	Asset                   string
	Cfi                     string
	SecurityType            string
	UnitOfMeasure           string
	Underlying              string
	StrikePriceCurrency     string
	InstrumentClass         byte
	MatchAlgorithm          byte
	MainFraction            uint8
	PriceDisplayFormat      uint8
	SubFraction             uint8
	UnderlyingProduct       uint8
	SecurityUpdateAction    byte
	MaturityMonth           uint8
	MaturityDay             uint8
	MaturityWeek            uint8
	UserDefinedInstrument   byte
	ContractMultiplierUnit  int8
	FlowScheduleType        int8
	TickRule                uint8
}

// ImbalanceMsg is an auction imbalance (tag 0x19).
type ImbalanceMsg struct {
	Header
	TsRecv               uint64
	RefPrice             Price
	AuctionTime          uint64
	ContBookClrPrice     Price
	AuctInterestClrPrice Price
	SsrFillingPrice      Price
	IndMatchPrice        Price
	UpperCollar          Price
	LowerCollar          Price
	PairedQty            uint32
	TotalImbalanceQty    uint32
	MarketImbalanceQty   uint32
	UnpairedQty          uint32
	AuctionType          byte
	Side                 byte
	AuctionStatus        uint8
	FreezeStatus         uint8
	NumExtensions        uint8
	UnpairedSide         byte
	SignificantImbalance byte
}

// ErrorMsg is a gateway error delivered in-band (tag 0x1A).
type ErrorMsg struct {
	Header
	Err    string
	Code   uint8
	IsLast uint8
}

// SymbolMappingMsg maps an instrument id to a symbol for a validity
// window (tag 0x1B).
type SymbolMappingMsg struct {
	Header
	STypeIn        uint8
	STypeInSymbol  string
	STypeOut       uint8
	STypeOutSymbol string
	StartTs        uint64
	EndTs          uint64
}

// SystemMsg is a gateway system message such as a heartbeat (tag 0x1C).
type SystemMsg struct {
	Header
	Msg  string
	Code uint8
}

// IsHeartbeat reports whether the message is a session heartbeat.
func (m SystemMsg) IsHeartbeat() bool {
	return m.Code == 0
}

// StatMsg is a venue statistic (tag 0x1D).
type StatMsg struct {
	Header
	TsRecv       uint64
	TsRef        uint64
	Price        Price
	Quantity     int32
	Sequence     uint32
	TsInDelta    int32
	StatType     uint16
	ChannelID    uint16
	UpdateAction uint8
	StatFlags    uint8
}

// UnknownMsg wraps a record with an unrecognized tag. The raw bytes are a
// copy; the header is parsed when the buffer is long enough, zero
// otherwise.
type UnknownMsg struct {
	Header
	TagByte uint8
	Raw     []byte
}
