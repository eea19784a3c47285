package rules

import "fmt"

// Severity orders OK < Warning < Critical. Unknown sits outside that order
// and overrides every other outcome when aggregated.
type Severity int

const (
	OK Severity = iota
	Warning
	Critical
	Unknown
)

func (s Severity) String() string {
	switch s {
	case OK:
		return "OK"
	case Warning:
		return "WARN"
	case Critical:
		return "CRIT"
	default:
		return "UNKNOWN"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "OK", "ok":
		return OK, nil
	case "WARN", "WARNING", "warn", "warning":
		return Warning, nil
	case "CRIT", "CRITICAL", "crit", "critical":
		return Critical, nil
	case "UNKNOWN", "unknown":
		return Unknown, nil
	default:
		return Unknown, fmt.Errorf("unknown severity %q", s)
	}
}

// Verdict is one (severity, message) finding. Rule names the rule that
// produced it; synthesized verdicts leave it empty.
type Verdict struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Rule     string   `json:"rule,omitempty"`
}

// Aggregate returns the worst severity among verdicts. Any Unknown wins;
// an empty slice is OK.
func Aggregate(verdicts []Verdict) Severity {
	worst := OK
	for _, v := range verdicts {
		if v.Severity == Unknown {
			return Unknown
		}
		if v.Severity > worst {
			worst = v.Severity
		}
	}
	return worst
}
