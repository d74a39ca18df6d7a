package writer

import (
	"testing"

	"github.com/Alparse/databento-client-sub000/internal/dbn"
)

func TestTradeWriter_Transform(t *testing.T) {
	w := &TradeWriter{cfg: DefaultWriterConfig()}

	msg := dbn.TradeMsg{
		Header: dbn.Header{
			RType:        dbn.RTypeMbp0,
			PublisherID:  1,
			InstrumentID: 11667,
			TsEvent:      1704222000000000000,
		},
		Price:    490050000000,
		Size:     100,
		Action:   'T',
		Side:     'B',
		TsRecv:   1704222000000001500,
		Sequence: 42,
	}

	row := w.transform(msg)

	if row.TsEvent != 1704222000000000000 {
		t.Errorf("TsEvent = %d", row.TsEvent)
	}
	if row.TsRecv != 1704222000000001500 {
		t.Errorf("TsRecv = %d", row.TsRecv)
	}
	if row.InstrumentID != 11667 || row.PublisherID != 1 {
		t.Errorf("ids = %d/%d, want 11667/1", row.InstrumentID, row.PublisherID)
	}
	if row.Price != 490050000000 || !row.PriceDefined {
		t.Errorf("price = %d defined=%v, want 490050000000 defined", row.Price, row.PriceDefined)
	}
	if row.Action != "T" || row.Side != "B" {
		t.Errorf("action/side = %q/%q, want T/B", row.Action, row.Side)
	}
	if row.Sequence != 42 {
		t.Errorf("Sequence = %d, want 42", row.Sequence)
	}
}

func TestTradeWriter_TransformUndefinedPrice(t *testing.T) {
	w := &TradeWriter{cfg: DefaultWriterConfig()}

	msg := dbn.TradeMsg{
		Header: dbn.Header{RType: dbn.RTypeMbp0, InstrumentID: 1},
		Price:  dbn.UndefPrice,
		Size:   10,
	}

	row := w.transform(msg)
	if row.PriceDefined {
		t.Error("undefined price must map to NULL, not a number")
	}
}

func TestOhlcvWriter_Transform(t *testing.T) {
	w := &OhlcvWriter{cfg: DefaultWriterConfig()}

	msg := dbn.OhlcvMsg{
		Header: dbn.Header{
			RType:        dbn.RTypeOhlcv1M,
			PublisherID:  1,
			InstrumentID: 11667,
			TsEvent:      1704222000000000000,
		},
		Open:   490000000000,
		High:   491000000000,
		Low:    489500000000,
		Close:  490050000000,
		Volume: 12345,
	}

	row := w.transform(msg)

	if row.Schema != "ohlcv-1m" {
		t.Errorf("Schema = %q, want ohlcv-1m", row.Schema)
	}
	if row.Open != 490000000000 || row.Close != 490050000000 {
		t.Errorf("open/close = %d/%d", row.Open, row.Close)
	}
	if row.Volume != 12345 {
		t.Errorf("Volume = %d, want 12345", row.Volume)
	}
}
