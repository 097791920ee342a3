package events

import (
	"bytes"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeAndEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []*Event
	unsubscribe := bus.Subscribe(BacktestStarted, func(e *Event) {
		got = append(got, e)
	})
	bus.Subscribe(BacktestCompleted, func(e *Event) {
		t.Fatal("handler for another type called")
	})

	bus.Emit(BacktestStarted, "test", map[string]interface{}{"name": "a"})
	require.Len(t, got, 1)
	assert.Equal(t, BacktestStarted, got[0].Type)
	assert.Equal(t, "test", got[0].Module)
	assert.Equal(t, "a", got[0].Data["name"])
	assert.False(t, got[0].Timestamp.IsZero())

	unsubscribe()
	bus.Emit(BacktestStarted, "test", nil)
	assert.Len(t, got, 1)
	assert.Equal(t, 0, bus.SubscriberCount(BacktestStarted))
	assert.Equal(t, 1, bus.SubscriberCount(BacktestCompleted))
}

func TestBus_UnsubscribeKeepsOtherHandlers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var calls []string
	first := bus.Subscribe(RatesRefreshed, func(*Event) { calls = append(calls, "first") })
	bus.Subscribe(RatesRefreshed, func(*Event) { calls = append(calls, "second") })

	first()
	first()
	bus.Emit(RatesRefreshed, "test", nil)
	assert.Equal(t, []string{"second"}, calls)
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var mu sync.Mutex
	seen := map[EventType]int{}
	unsubscribe := bus.SubscribeAll(func(e *Event) {
		mu.Lock()
		seen[e.Type]++
		mu.Unlock()
	})

	for _, et := range AllTypes() {
		bus.Emit(et, "test", nil)
	}
	assert.Len(t, seen, len(AllTypes()))

	unsubscribe()
	for _, et := range AllTypes() {
		assert.Equal(t, 0, bus.SubscriberCount(et))
	}
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	delivered := false
	bus.Subscribe(ErrorOccurred, func(*Event) { panic("boom") })
	bus.Subscribe(ErrorOccurred, func(*Event) { delivered = true })

	assert.NotPanics(t, func() { bus.Emit(ErrorOccurred, "test", nil) })
	assert.True(t, delivered)
}

func TestManager_EmitTyped(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.InfoLevel)
	bus := NewBus(log)
	manager := NewManager(bus, log)

	var got *Event
	bus.Subscribe(BacktestCompleted, func(e *Event) { got = e })

	manager.EmitTyped("backtest", &BacktestCompletedData{
		PairID:            "p1",
		StrategyReturnPct: 12.5,
		BaselineReturnPct: 10,
		ExcessReturnPct:   2.5,
	})

	require.NotNil(t, got)
	assert.Equal(t, "p1", got.Data["pair_id"])
	assert.Equal(t, 2.5, got.Data["excess_return_pct"])
	assert.Contains(t, buf.String(), "BACKTEST_COMPLETED")

	buf.Reset()
	manager.EmitTyped("backtest", &BacktestProgressData{PairID: "p1", Day: 1, Total: 10})
	assert.Empty(t, buf.String(), "progress events log at debug level")
}

func TestManager_EmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(ErrorOccurred, func(e *Event) { got = e })

	manager.EmitError("scheduler", assert.AnError, map[string]interface{}{"job": "refresh_rates"})
	require.NotNil(t, got)
	assert.Equal(t, assert.AnError.Error(), got.Data["error"])
	assert.Equal(t, "refresh_rates", got.Data["context"].(map[string]interface{})["job"])
}

func TestEventDataTypes(t *testing.T) {
	tests := []struct {
		data EventData
		want EventType
	}{
		{&BacktestStartedData{}, BacktestStarted},
		{&BacktestProgressData{}, BacktestProgress},
		{&BacktestCompletedData{}, BacktestCompleted},
		{&BacktestFailedData{}, BacktestFailed},
		{&RunExportedData{}, RunExported},
		{&RatesRefreshedData{}, RatesRefreshed},
		{&DataImportedData{}, DataImported},
		{&ErrorEventData{}, ErrorOccurred},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.data.EventType())
		})
	}
}
