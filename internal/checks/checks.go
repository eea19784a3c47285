package checks

import (
	"sort"
	"time"

	"powerwatch-backend/internal/discovery"
	"powerwatch-backend/internal/metrics"
	"powerwatch-backend/internal/reassemble"
	"powerwatch-backend/internal/record"
	"powerwatch-backend/internal/rules"
)

// Table tells the telemetry source which logical table to fetch. It is
// passed through verbatim.
type Table struct {
	Name string   `json:"name"`
	Base string   `json:"base,omitempty"`
	OIDs []string `json:"oids,omitempty"`
}

// Check is the static definition of one check type.
type Check struct {
	Name        string
	ServiceName string
	Table       Table
	Positional  *reassemble.Positional
	Parallel    *reassemble.ParallelArray
	Rules       rules.RuleSet
	Metrics     []metrics.Spec
}

// HasEntities reports whether the check yields one service per sub-entity.
func (c Check) HasEntities() bool { return c.Parallel != nil }

// Fetches reports whether the check needs rows from the telemetry source.
func (c Check) Fetches() bool { return c.Positional != nil || c.Parallel != nil }

// Records reassembles the rows of one poll into entity-scoped records.
func (c Check) Records(rows []record.RawRow) ([]record.Record, error) {
	switch {
	case c.Parallel != nil:
		entries, err := c.Parallel.DecodeRows(rows)
		if err != nil {
			return nil, err
		}
		return discovery.Group(c.Name, entries), nil
	case c.Positional != nil:
		rec, err := c.Positional.DecodeRows(rows)
		if err != nil {
			return nil, err
		}
		return []record.Record{rec}, nil
	default:
		return []record.Record{record.NewBuilder(c.Name, "").Build()}, nil
	}
}

type Options struct {
	Hours    rules.BusinessHours
	Location *time.Location
}

// Catalog is the read-only set of known check types. It is safe to share
// between concurrent poll cycles.
type Catalog struct {
	checks map[string]Check
}

func NewCatalog(opts Options) *Catalog {
	if len(opts.Hours.Days) == 0 {
		loc := opts.Hours.Location
		opts.Hours = rules.DefaultBusinessHours()
		opts.Hours.Location = loc
	}
	all := []Check{
		eltekCheck(opts),
		eltekDoor(opts),
		eltekRuntime(),
		eltekGenerator(),
		eltekCommercialPower(),
		clearfieldCabinet(),
		edfamuxCheck(opts),
		edfamuxV2(),
		naradaBattery(),
		constantCheck("edfamux_psu", "Edfamux Power", "edfamux_base_config_psu", "Edfamux Power Supplies - OK"),
		constantCheck("edfamux_env", "Edfamux Env Health", "edfamux_base_config_env", "Edfamux Environment - OK"),
		constantCheck("edfamux_light", "Edfamux Common Monitor", "edfamux_base_config_light", "Edfamux Common Read"),
		kea(),
	}
	c := &Catalog{checks: make(map[string]Check, len(all))}
	for _, check := range all {
		c.checks[check.Name] = check
	}
	return c
}

func (c *Catalog) Get(name string) (Check, bool) {
	check, ok := c.checks[name]
	return check, ok
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) All() []Check {
	out := make([]Check, 0, len(c.checks))
	for _, name := range c.Names() {
		out = append(out, c.checks[name])
	}
	return out
}
