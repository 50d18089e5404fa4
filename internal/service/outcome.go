package service

import (
	"time"

	"moex-history/internal/model"
)

// Status is the terminal state of one instrument's processing.
type Status string

const (
	// StatusSucceeded means at least one series was persisted and none was truncated.
	StatusSucceeded Status = "succeeded"
	// StatusNoData means every series came back empty; nothing was written.
	StatusNoData Status = "no_data"
	// StatusPartial means a fetch failure truncated at least one series.
	StatusPartial Status = "partial"
	// StatusFailed means processing stopped on an unhandled error.
	StatusFailed Status = "failed"
)

// Outcome is the per-instrument result recorded in the batch report.
type Outcome struct {
	Instrument model.InstrumentID
	Status     Status
	Records    map[model.Kind]int
	Locations  map[model.Kind]string
	// Empty lists the series kinds that returned no rows.
	Empty []model.Kind
	// Truncated lists the series kinds cut short by a fetch failure.
	Truncated []model.Kind
	// Err is the failure cause, or the first truncating fetch error.
	Err error
}

// Report aggregates every outcome of one batch, in source order.
type Report struct {
	RunID       string
	StartedAt   time.Time
	Duration    time.Duration
	Outcomes    []Outcome
	Interrupted bool
}

// Counts tallies outcomes by status.
type Counts struct {
	Succeeded int
	NoData    int
	Partial   int
	Failed    int
}

// Total is the number of instruments processed.
func (c Counts) Total() int {
	return c.Succeeded + c.NoData + c.Partial + c.Failed
}

// Counts tallies the report's outcomes.
func (r Report) Counts() Counts {
	var c Counts
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusSucceeded:
			c.Succeeded++
		case StatusNoData:
			c.NoData++
		case StatusPartial:
			c.Partial++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// WithStatus returns the outcomes in the given state.
func (r Report) WithStatus(status Status) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

// Outcome looks up the result for one instrument.
func (r Report) Outcome(id model.InstrumentID) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Instrument == id {
			return o, true
		}
	}
	return Outcome{}, false
}
