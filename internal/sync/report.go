// Package sync copies invoice and dispute data from the carrier APIs into the repository.
// Every job fans out over a bounded pool; a failing item is recorded in the run's Report
// and never aborts the run.
package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nitrotech24/disputa-portal-conferencia/internal/metrics"
)

type Result string

const (
	ResultChanged   Result = "changed"
	ResultUnchanged Result = "unchanged"
	ResultSkipped   Result = "skipped"
	ResultFailed    Result = "failed"
)

// Outcome is the result of one item of a run.
type Outcome struct {
	Item   string
	Result Result
	Detail string
	Err    error
}

func changed(item string, c bool) Outcome {
	if c {
		return Outcome{Item: item, Result: ResultChanged}
	}
	return Outcome{Item: item, Result: ResultUnchanged}
}

func skipped(item, detail string) Outcome {
	return Outcome{Item: item, Result: ResultSkipped, Detail: detail}
}

func failed(item string, err error) Outcome {
	return Outcome{Item: item, Result: ResultFailed, Err: err}
}

// Failure is a failed item as kept in the report.
type Failure struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

// Report aggregates the outcomes of one job run in completion order.
type Report struct {
	Job      string `json:"job"`
	Carrier  string `json:"carrier"`
	Customer string `json:"customer,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Took      time.Duration `json:"took"`

	Total     int `json:"total"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`

	Failures []Failure `json:"failures,omitempty"`

	mu stdsync.Mutex
}

func NewReport(job, carrier, customer string) *Report {
	return &Report{
		Job:       job,
		Carrier:   carrier,
		Customer:  customer,
		StartedAt: time.Now(),
	}
}

// Succeeded counts every item that did not fail.
func (r *Report) Succeeded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Total - r.Failed
}

func (r *Report) Record(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Total++
	switch o.Result {
	case ResultChanged:
		r.Changed++
	case ResultUnchanged:
		r.Unchanged++
	case ResultSkipped:
		r.Skipped++
	case ResultFailed:
		r.Failed++
		msg := "unknown error"
		if o.Err != nil {
			msg = o.Err.Error()
		}
		r.Failures = append(r.Failures, Failure{Item: o.Item, Error: msg})
	}
}

// Finish stamps the duration, records metrics and logs the summary.
func (r *Report) Finish(ctx context.Context) *Report {
	r.mu.Lock()
	r.Took = time.Since(r.StartedAt)
	r.mu.Unlock()

	metrics.RecordSyncRun(r.Job, r.Succeeded(), r.Failed, r.Took)

	var ev *zerolog.Event
	if r.Failed > 0 {
		ev = log.Ctx(ctx).Warn()
	} else {
		ev = log.Ctx(ctx).Info()
	}
	ev.Str("job", r.Job).
		Str("carrier", r.Carrier).
		Str("customer", r.Customer).
		Int("total", r.Total).
		Int("changed", r.Changed).
		Int("unchanged", r.Unchanged).
		Int("skipped", r.Skipped).
		Int("failed", r.Failed).
		Dur("took", r.Took).
		Msg("sync run finished")
	return r
}

func (r *Report) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("%s %s: %d items, %d changed, %d unchanged, %d skipped, %d failed in %s",
		r.Job, r.Carrier, r.Total, r.Changed, r.Unchanged, r.Skipped, r.Failed, r.Took.Round(time.Millisecond))
}
