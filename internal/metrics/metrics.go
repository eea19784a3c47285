package metrics

import "powerwatch-backend/internal/record"

// Range is the plausible display bound of a metric.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Levels annotate a metric with warn/crit thresholds. Lower marks thresholds
// that apply when the value falls below them.
type Levels struct {
	Warn  float64 `json:"warn"`
	Crit  float64 `json:"crit"`
	Lower bool    `json:"lower,omitempty"`
}

// Spec declares one metric-bearing field of a check type.
type Spec struct {
	Name   string
	Field  string
	Scale  float64
	Range  *Range
	Levels *Levels
}

type Sample struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Range  *Range  `json:"range,omitempty"`
	Levels *Levels `json:"levels,omitempty"`
}

// Emit extracts one sample per spec whose field holds a number. It only reads
// the record and never looks at verdicts.
func Emit(rec record.Record, specs []Spec) []Sample {
	samples := make([]Sample, 0, len(specs))
	for _, spec := range specs {
		v, err := rec.Number(spec.Field)
		if err != nil {
			continue
		}
		if spec.Scale != 0 {
			v /= spec.Scale
		}
		samples = append(samples, Sample{
			Name:   spec.Name,
			Value:  v,
			Range:  spec.Range,
			Levels: spec.Levels,
		})
	}
	return samples
}
