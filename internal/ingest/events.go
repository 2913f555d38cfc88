package ingest

import "time"

// Event is what the driver reports to an optional Notifier while a run
// progresses. The api-server forwards these to websocket subscribers.
type Event struct {
	Type   string    `json:"type"` // "run.start", "unit.done", "run.done"
	RunID  string    `json:"run_id"`
	Source string    `json:"source"`
	Unit   string    `json:"unit,omitempty"`
	Cursor []int     `json:"cursor,omitempty"`
	Counts Counts    `json:"counts"`
	At     time.Time `json:"at"`
}

// Notifier receives progress events. Implementations must not block
// the ingestion loop.
type Notifier interface {
	Notify(ev Event)
}

// Counts is the per-run outcome tally the driver reports per source.
type Counts struct {
	Created   int `json:"created"`   // products newly persisted this run
	Known     int `json:"known"`     // article already cached, price appended only
	Malformed int `json:"malformed"` // skipped: record missing required fields
	Failed    int `json:"failed"`    // gateway or resolution failure, logged and skipped
}
