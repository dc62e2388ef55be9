package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/prediction-backtest/internal/model"
)

func runWriter(t *testing.T, records []struct {
	ts      int64
	kind    string
	payload any
}) string {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(DefaultConfig(), &buf, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for _, r := range records {
		w.Append(r.ts, r.kind, r.payload)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	return buf.String()
}

func TestWriterRoundTrip(t *testing.T) {
	out := runWriter(t, []struct {
		ts      int64
		kind    string
		payload any
	}{
		{1, KindOpen, LifecyclePayload{MarketID: "MKT-A"}},
		{2, KindTrade, TradePayload{MarketID: "MKT-A", YesPrice: 0.4, Size: 5, TakerSide: "no"}},
		{2, KindFill, FillPayload{OrderID: 1, MarketID: "MKT-A", Side: "buy_yes", Quantity: 5, Price: 0.41}},
		{3, KindResolve, LifecyclePayload{MarketID: "MKT-A", Outcome: "yes"}},
	})

	records, err := ReadAll(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("records = %d, want 4", len(records))
	}

	wantKinds := []string{KindOpen, KindTrade, KindFill, KindResolve}
	for i, want := range wantKinds {
		if records[i].Kind != want {
			t.Errorf("records[%d].Kind = %q, want %q", i, records[i].Kind, want)
		}
	}

	var fill FillPayload
	if err := json.Unmarshal(records[2].Payload, &fill); err != nil {
		t.Fatalf("unmarshal fill payload: %v", err)
	}
	if fill.OrderID != 1 || fill.Quantity != 5 {
		t.Errorf("fill payload = %+v", fill)
	}
}

func TestWriterPreservesOrder(t *testing.T) {
	var recs []struct {
		ts      int64
		kind    string
		payload any
	}
	for i := 0; i < 500; i++ {
		recs = append(recs, struct {
			ts      int64
			kind    string
			payload any
		}{int64(i), KindTrade, TradePayload{MarketID: "MKT-A", YesPrice: 0.5, Size: 1, TakerSide: "yes"}})
	}
	out := runWriter(t, recs)

	records, err := ReadAll(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 500 {
		t.Fatalf("records = %d, want 500", len(records))
	}
	for i, rec := range records {
		if rec.TS != int64(i) {
			t.Fatalf("records[%d].TS = %d, order not preserved", i, rec.TS)
		}
	}
}

func TestWriterDeterministicBytes(t *testing.T) {
	build := func() string {
		return runWriter(t, []struct {
			ts      int64
			kind    string
			payload any
		}{
			{1, KindTrade, TradePayload{MarketID: "MKT-A", YesPrice: 0.42, Size: 7, TakerSide: "no"}},
			{2, KindSnapshot, SnapshotPayload{Cash: 100, Equity: 105.5, UnrealizedPnL: 5.5, NumPositions: 1}},
		})
	}
	if a, b := build(), build(); a != b {
		t.Errorf("two identical runs produced different bytes:\n%q\n%q", a, b)
	}
}

func TestReaderToleratesUnknownFields(t *testing.T) {
	input := `{"ts":1,"kind":"trade","payload":{"market_id":"MKT-A"},"future_field":"x"}
{"ts":2,"kind":"brand_new_kind","payload":{"whatever":true}}
`
	records, err := ReadAll(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[1].Kind != "brand_new_kind" {
		t.Errorf("unknown kind not preserved: %q", records[1].Kind)
	}
}

func TestReaderRejectsMalformedLine(t *testing.T) {
	if _, err := ReadAll(strings.NewReader("not json\n")); err == nil {
		t.Error("ReadAll() should fail on malformed line")
	}
}

func TestPayloadConstructors(t *testing.T) {
	tp := TradeRecord(model.TradeEvent{MarketID: "M", YesPrice: 0.3, Size: 2, TakerSide: model.TakerBoughtNo})
	if tp.TakerSide != "no" {
		t.Errorf("TakerSide = %q, want no", tp.TakerSide)
	}
	fp := FillRecord(model.Fill{OrderID: 9, MarketID: "M", Side: model.SellNo, Quantity: 3, Price: 0.7})
	if fp.Side != "sell_no" {
		t.Errorf("Side = %q, want sell_no", fp.Side)
	}
	sp := SnapshotRecord(model.Snapshot{Cash: 10, Equity: 12, Positions: []model.Position{{MarketID: "M"}}})
	if sp.NumPositions != 1 {
		t.Errorf("NumPositions = %d, want 1", sp.NumPositions)
	}
}
