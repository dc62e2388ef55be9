package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/rickgao/prediction-backtest/internal/model"
)

func TestMemoryFeedSortsTrades(t *testing.T) {
	trades := []model.TradeEvent{
		{MarketID: "A", TS: 30, YesPrice: 0.5, Size: 1},
		{MarketID: "A", TS: 10, YesPrice: 0.4, Size: 1},
		{MarketID: "A", TS: 20, YesPrice: 0.6, Size: 1},
	}
	f := NewMemoryFeed(nil, trades)

	cur, err := f.Trades(context.Background())
	if err != nil {
		t.Fatalf("Trades() error = %v", err)
	}
	defer cur.Close()

	var got []int64
	for cur.Next() {
		got = append(got, cur.Trade().TS)
	}
	if cur.Err() != nil {
		t.Fatalf("Err() = %v", cur.Err())
	}
	want := []int64{10, 20, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("trade[%d].TS = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMemoryFeedStableWithinTimestamp(t *testing.T) {
	trades := []model.TradeEvent{
		{MarketID: "first", TS: 10, YesPrice: 0.5, Size: 1},
		{MarketID: "second", TS: 10, YesPrice: 0.5, Size: 1},
	}
	f := NewMemoryFeed(nil, trades)
	cur, _ := f.Trades(context.Background())
	defer cur.Close()

	cur.Next()
	if cur.Trade().MarketID != "first" {
		t.Errorf("feed order not preserved at equal timestamps")
	}
}

func TestMemoryFeedSingleUse(t *testing.T) {
	f := NewMemoryFeed(nil, nil)
	if _, err := f.Trades(context.Background()); err != nil {
		t.Fatalf("first Trades() error = %v", err)
	}
	if _, err := f.Trades(context.Background()); !errors.Is(err, ErrStreamConsumed) {
		t.Errorf("second Trades() error = %v, want ErrStreamConsumed", err)
	}
}

func TestMemoryFeedCount(t *testing.T) {
	f := NewMemoryFeed(nil, make([]model.TradeEvent, 7))
	n, err := f.TradeCount(context.Background())
	if err != nil || n != 7 {
		t.Errorf("TradeCount() = %d, %v, want 7, nil", n, err)
	}
}

func newTestPolymarketFeed() *PolymarketFeed {
	f := NewPolymarketFeed(PolymarketConfig{NumMarkets: 1}, nil)
	f.tokens["yes-token"] = tokenInfo{conditionID: "0xcond", yesLeg: true}
	f.tokens["no-token"] = tokenInfo{conditionID: "0xcond", yesLeg: false}
	return f
}

func TestParseLastTradePriceYesToken(t *testing.T) {
	f := newTestPolymarketFeed()
	raw := []byte(`{"event_type":"last_trade_price","asset_id":"yes-token","price":"0.62","size":"40","timestamp":"1700000000000"}`)

	var lastTS int64
	trades := f.parseMessage(raw, &lastTS)
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	tr := trades[0]
	if tr.MarketID != "0xcond" || tr.YesPrice != 0.62 || tr.Size != 40 {
		t.Errorf("trade = %+v", tr)
	}
	if tr.TakerSide != model.TakerBoughtYes {
		t.Errorf("taker = %v, want yes", tr.TakerSide)
	}
	if tr.TS != 1700000000000 {
		t.Errorf("TS = %d, want 1700000000000", tr.TS)
	}
}

func TestParseNoTokenMapsToYesSpace(t *testing.T) {
	f := newTestPolymarketFeed()
	raw := []byte(`[{"event_type":"last_trade_price","asset_id":"no-token","price":"0.30","size":"5","timestamp":"1700000000001"}]`)

	var lastTS int64
	trades := f.parseMessage(raw, &lastTS)
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	tr := trades[0]
	if tr.YesPrice != 0.70 {
		t.Errorf("YesPrice = %v, want 0.70 (1 - no price)", tr.YesPrice)
	}
	if tr.TakerSide != model.TakerBoughtNo {
		t.Errorf("taker = %v, want no", tr.TakerSide)
	}
}

func TestParseIgnoresBooksAndUnknownAssets(t *testing.T) {
	f := newTestPolymarketFeed()
	var lastTS int64

	book := []byte(`{"event_type":"book","asset_id":"yes-token"}`)
	if got := f.parseMessage(book, &lastTS); len(got) != 0 {
		t.Errorf("book message produced %d trades", len(got))
	}

	unknown := []byte(`{"event_type":"last_trade_price","asset_id":"mystery","price":"0.5"}`)
	if got := f.parseMessage(unknown, &lastTS); len(got) != 0 {
		t.Errorf("unknown asset produced %d trades", len(got))
	}

	garbage := []byte(`not json`)
	if got := f.parseMessage(garbage, &lastTS); len(got) != 0 {
		t.Errorf("garbage produced %d trades", len(got))
	}
}

func TestParseClampsClockSkew(t *testing.T) {
	f := newTestPolymarketFeed()
	lastTS := int64(1700000000500)
	raw := []byte(`{"event_type":"last_trade_price","asset_id":"yes-token","price":"0.5","size":"1","timestamp":"1700000000100"}`)

	trades := f.parseMessage(raw, &lastTS)
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if trades[0].TS != 1700000000500 {
		t.Errorf("TS = %d, want clamped to 1700000000500", trades[0].TS)
	}
}

func TestParsePriceChangeWithLastTrade(t *testing.T) {
	f := newTestPolymarketFeed()
	var lastTS int64
	raw := []byte(`{"event_type":"price_change","asset_id":"yes-token","last_trade_price":"0.55","timestamp":"1700000000000"}`)

	trades := f.parseMessage(raw, &lastTS)
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if trades[0].YesPrice != 0.55 {
		t.Errorf("YesPrice = %v, want 0.55", trades[0].YesPrice)
	}
	if trades[0].Size != 1.0 {
		t.Errorf("Size = %v, want default 1", trades[0].Size)
	}
}
