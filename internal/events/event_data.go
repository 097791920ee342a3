package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// BacktestStartedData contains data for BacktestStarted events
type BacktestStartedData struct {
	PairID    string   `json:"pair_id"`
	Name      string   `json:"name"`
	Tickers   []string `json:"tickers"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
}

// EventType returns the event type for BacktestStartedData
func (d *BacktestStartedData) EventType() EventType {
	return BacktestStarted
}

// BacktestProgressData contains data for BacktestProgress events
type BacktestProgressData struct {
	PairID   string  `json:"pair_id"`
	Mode     string  `json:"mode"`
	Day      int     `json:"day"`
	Total    int     `json:"total"`
	Date     string  `json:"date"`
	Equity   float64 `json:"equity"`
	Progress float64 `json:"progress"` // Percent complete
}

// EventType returns the event type for BacktestProgressData
func (d *BacktestProgressData) EventType() EventType {
	return BacktestProgress
}

// BacktestCompletedData contains data for BacktestCompleted events
type BacktestCompletedData struct {
	PairID            string  `json:"pair_id"`
	StrategyRunID     string  `json:"strategy_run_id"`
	BaselineRunID     string  `json:"baseline_run_id"`
	StrategyReturnPct float64 `json:"strategy_return_pct"`
	BaselineReturnPct float64 `json:"baseline_return_pct"`
	ExcessReturnPct   float64 `json:"excess_return_pct"`
	DurationMs        int64   `json:"duration_ms"`
}

// EventType returns the event type for BacktestCompletedData
func (d *BacktestCompletedData) EventType() EventType {
	return BacktestCompleted
}

// BacktestFailedData contains data for BacktestFailed events
type BacktestFailedData struct {
	PairID string `json:"pair_id"`
	Name   string `json:"name"`
	Error  string `json:"error"`
}

// EventType returns the event type for BacktestFailedData
func (d *BacktestFailedData) EventType() EventType {
	return BacktestFailed
}

// RunExportedData contains data for RunExported events
type RunExportedData struct {
	RunID    string   `json:"run_id"`
	Dir      string   `json:"dir"`
	Uploaded []string `json:"uploaded,omitempty"`
}

// EventType returns the event type for RunExportedData
func (d *RunExportedData) EventType() EventType {
	return RunExported
}

// RatesRefreshedData contains data for RatesRefreshed events
type RatesRefreshedData struct {
	Series string `json:"series"`
	Stored int    `json:"stored"`
	Latest string `json:"latest,omitempty"`
}

// EventType returns the event type for RatesRefreshedData
func (d *RatesRefreshedData) EventType() EventType {
	return RatesRefreshed
}

// DataImportedData contains data for DataImported events
type DataImportedData struct {
	Kind   string `json:"kind"` // prices, net_income, eps, rates
	Key    string `json:"key"`  // Ticker or rate series
	Stored int    `json:"stored"`
}

// EventType returns the event type for DataImportedData
func (d *DataImportedData) EventType() EventType {
	return DataImported
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
