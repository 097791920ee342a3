// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	BacktestStarted   EventType = "BACKTEST_STARTED"
	BacktestProgress  EventType = "BACKTEST_PROGRESS"
	BacktestCompleted EventType = "BACKTEST_COMPLETED"
	BacktestFailed    EventType = "BACKTEST_FAILED"
	RunExported       EventType = "RUN_EXPORTED"
	RatesRefreshed    EventType = "RATES_REFRESHED"
	DataImported      EventType = "DATA_IMPORTED"
	ErrorOccurred     EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type the system emits.
func AllTypes() []EventType {
	return []EventType{
		BacktestStarted,
		BacktestProgress,
		BacktestCompleted,
		BacktestFailed,
		RunExported,
		RatesRefreshed,
		DataImported,
		ErrorOccurred,
	}
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
