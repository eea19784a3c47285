package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"powerwatch-backend/internal/checks"
	"powerwatch-backend/internal/decode"
	"powerwatch-backend/internal/discovery"
	"powerwatch-backend/internal/metrics"
	"powerwatch-backend/internal/reassemble"
	"powerwatch-backend/internal/record"
	"powerwatch-backend/internal/rules"
	"powerwatch-backend/internal/source"
)

var ErrUnknownCheck = errors.New("unknown check")

type Device struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Community string `json:"-"`
}

// Report is the outcome of one check for one service in one poll cycle.
type Report struct {
	PollID   uuid.UUID        `json:"poll_id"`
	Device   string           `json:"device"`
	Check    string           `json:"check"`
	Service  string           `json:"service"`
	Item     string           `json:"item,omitempty"`
	State    rules.Severity   `json:"state"`
	Verdicts []rules.Verdict  `json:"verdicts"`
	Metrics  []metrics.Sample `json:"metrics"`
	At       time.Time        `json:"at"`
}

// Runner wires the decode and evaluate core to a telemetry source. A Runner
// holds no per-poll state and may be shared by concurrent polls.
type Runner struct {
	Source  source.Source
	Catalog *checks.Catalog
	NewID   func() uuid.UUID
}

func NewRunner(src source.Source, catalog *checks.Catalog) *Runner {
	return &Runner{Source: src, Catalog: catalog, NewID: uuid.New}
}

func (r *Runner) check(name string) (checks.Check, error) {
	check, ok := r.Catalog.Get(name)
	if !ok {
		return checks.Check{}, fmt.Errorf("%w: %s", ErrUnknownCheck, name)
	}
	return check, nil
}

func (r *Runner) fetch(ctx context.Context, dev Device, check checks.Check) ([]record.RawRow, error) {
	if !check.Fetches() {
		return nil, nil
	}
	return r.Source.Fetch(ctx, source.Request{
		Device:    dev.ID,
		Address:   dev.Address,
		Community: dev.Community,
		Table:     check.Table,
	})
}

// Run performs one poll cycle of a check on a device, evaluated at the given
// instant. Fetch, decode and shape failures come back as a single UNKNOWN
// report rather than an error; only an unknown check name is an error.
func (r *Runner) Run(ctx context.Context, dev Device, checkName string, at time.Time) ([]Report, error) {
	check, err := r.check(checkName)
	if err != nil {
		return nil, err
	}
	pollID := r.NewID()
	rows, err := r.fetch(ctx, dev, check)
	if err != nil {
		return []Report{failed(pollID, dev.ID, check, "fetch failed: "+err.Error(), at)}, nil
	}
	reports := Evaluate(check, rows, at)
	for i := range reports {
		reports[i].PollID = pollID
		reports[i].Device = dev.ID
	}
	return reports, nil
}

// Discover returns the services a check would report for the device now.
func (r *Runner) Discover(ctx context.Context, dev Device, checkName string) ([]discovery.Service, error) {
	check, err := r.check(checkName)
	if err != nil {
		return nil, err
	}
	rows, err := r.fetch(ctx, dev, check)
	if err != nil {
		return nil, err
	}
	return DiscoverRows(check, rows)
}

func DiscoverRows(check checks.Check, rows []record.RawRow) ([]discovery.Service, error) {
	if check.Fetches() && len(rows) == 0 {
		return nil, nil
	}
	records, err := check.Records(rows)
	if err != nil {
		return nil, err
	}
	return discovery.Discover(check.ServiceName, records), nil
}

// Evaluate runs the check path over already fetched rows: reassemble, then
// evaluate and emit per entity. Device and poll id are left to the caller.
func Evaluate(check checks.Check, rows []record.RawRow, at time.Time) []Report {
	records, err := check.Records(rows)
	if err != nil {
		return []Report{failed(uuid.Nil, "", check, describe(err), at)}
	}
	reports := make([]Report, 0, len(records))
	for _, rec := range records {
		res := rules.Evaluate(rec, check.Rules, at)
		reports = append(reports, Report{
			Check:    check.Name,
			Service:  discovery.ServiceName(check.ServiceName, rec.Entity()),
			Item:     rec.Entity(),
			State:    res.State,
			Verdicts: res.Verdicts,
			Metrics:  metrics.Emit(rec, check.Metrics),
			At:       at,
		})
	}
	return reports
}

func failed(pollID uuid.UUID, device string, check checks.Check, cause string, at time.Time) Report {
	res := rules.UnknownResult(cause)
	return Report{
		PollID:   pollID,
		Device:   device,
		Check:    check.Name,
		Service:  discovery.ServiceName(check.ServiceName, ""),
		State:    res.State,
		Verdicts: res.Verdicts,
		Metrics:  []metrics.Sample{},
		At:       at,
	}
}

func describe(err error) string {
	var shapeErr *reassemble.ShapeError
	var decErr *decode.Error
	switch {
	case errors.As(err, &shapeErr):
		return "unexpected table shape: " + shapeErr.Reason
	case errors.As(err, &decErr):
		return "cannot decode " + decErr.Error()
	default:
		return err.Error()
	}
}
