package bus

import (
	"testing"

	"github.com/sharif3/momentum-trader/internal/model"
)

func TestFanOut_PublishReachesAllSubscribers(t *testing.T) {
	f := New(4)
	a := f.Subscribe("redis")
	b := f.Subscribe("sqlite")

	c := model.Candle{Symbol: "TSLA", Timeframe: model.TF1m, StartTS: 60_000}
	f.Publish(c)

	if got := <-a; got.Symbol != "TSLA" {
		t.Errorf("subscriber a: %+v", got)
	}
	if got := <-b; got.StartTS != 60_000 {
		t.Errorf("subscriber b: %+v", got)
	}
}

func TestFanOut_SlowSubscriberDrops(t *testing.T) {
	f := New(1)
	slow := f.Subscribe("slow")

	var dropped []string
	f.OnDrop = func(name string) { dropped = append(dropped, name) }

	f.Publish(model.Candle{StartTS: 1})
	f.Publish(model.Candle{StartTS: 2}) // channel full: dropped

	if len(dropped) != 1 || dropped[0] != "slow" {
		t.Fatalf("expected one drop for slow, got %v", dropped)
	}
	if got := <-slow; got.StartTS != 1 {
		t.Errorf("first candle should survive, got %+v", got)
	}
}

func TestFanOut_Stats(t *testing.T) {
	f := New(8)
	f.Subscribe("redis")
	f.Publish(model.Candle{StartTS: 1})

	stats := f.Stats()
	s, ok := stats["redis"]
	if !ok || s.Len != 1 || s.Cap != 8 {
		t.Errorf("stats wrong: %+v", stats)
	}
}
