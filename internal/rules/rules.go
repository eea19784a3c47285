package rules

import (
	"fmt"
	"strings"
	"time"

	"powerwatch-backend/internal/record"
)

// Message renders a verdict summary from the record it was raised on.
type Message func(rec record.Record) string

// Text is a fixed message.
func Text(s string) Message {
	return func(record.Record) string { return s }
}

// Gate restricts a rule to records where the named guard's outcome equals
// When. A rule gated on a guard that errored does not run.
type Gate struct {
	Guard string
	When  bool
}

// Rule is a static predicate -> severity mapping. Guards are evaluated before
// every other rule; their outcome gates later rules and, unless Silent, is
// reported as a verdict when it holds. Halt stops evaluation once the rule
// fires.
type Rule struct {
	Name     string
	When     Condition
	Severity Severity
	Message  Message
	Guard    bool
	Silent   bool
	Gate     *Gate
	Halt     bool
}

// RuleSet is the ordered, immutable rule list of one check type.
type RuleSet struct {
	name     string
	required []string
	rules    []Rule
	ok       Message
	missing  func(rec record.Record, fields []string) string
}

type Option func(*RuleSet)

// WithMissingMessage overrides the summary of the UNKNOWN verdict emitted
// when required fields are absent.
func WithMissingMessage(fn func(rec record.Record, fields []string) string) Option {
	return func(s *RuleSet) { s.missing = fn }
}

func NewRuleSet(name string, required []string, rules []Rule, ok Message, opts ...Option) (RuleSet, error) {
	set := RuleSet{
		name:     name,
		required: append([]string(nil), required...),
		rules:    append([]Rule(nil), rules...),
		ok:       ok,
		missing:  defaultMissing,
	}
	for _, opt := range opts {
		opt(&set)
	}
	if err := set.validate(); err != nil {
		return RuleSet{}, err
	}
	return set, nil
}

// MustRuleSet is NewRuleSet for statically declared catalogues.
func MustRuleSet(name string, required []string, rules []Rule, ok Message, opts ...Option) RuleSet {
	set, err := NewRuleSet(name, required, rules, ok, opts...)
	if err != nil {
		panic(err)
	}
	return set
}

func (s RuleSet) Name() string       { return s.name }
func (s RuleSet) Required() []string { return append([]string(nil), s.required...) }
func (s RuleSet) Rules() []Rule      { return append([]Rule(nil), s.rules...) }

func defaultMissing(_ record.Record, fields []string) string {
	return "Missing metrics: " + strings.Join(fields, ", ")
}

// DefinitionError lists every problem found in a rule set declaration.
type DefinitionError struct {
	Set     string
	Details []string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("rule set %s invalid: %s", e.Set, strings.Join(e.Details, "; "))
}

func (s RuleSet) validate() error {
	var details []string
	if s.ok == nil {
		details = append(details, "missing OK message")
	}
	guards := map[string]bool{}
	names := map[string]bool{}
	for i, r := range s.rules {
		label := r.Name
		if label == "" {
			label = fmt.Sprintf("rules[%d]", i)
		}
		if r.When == nil {
			details = append(details, label+": missing condition")
		}
		if r.Name != "" {
			if names[r.Name] {
				details = append(details, label+": duplicate name")
			}
			names[r.Name] = true
		}
		if r.Guard {
			if r.Name == "" {
				details = append(details, label+": guard needs a name")
			}
			if r.Gate != nil {
				details = append(details, label+": guard cannot be gated")
			}
			guards[r.Name] = true
		}
		if r.Silent && !r.Guard {
			details = append(details, label+": only guards can be silent")
		}
		if !r.Silent && r.Message == nil {
			details = append(details, label+": missing message")
		}
		if r.Severity == OK && !r.Silent {
			details = append(details, label+": firing rules must raise WARN, CRIT or UNKNOWN")
		}
	}
	for _, r := range s.rules {
		if r.Gate != nil && !guards[r.Gate.Guard] {
			details = append(details, fmt.Sprintf("%s: gate references undeclared guard %q", r.Name, r.Gate.Guard))
		}
	}
	if len(details) > 0 {
		return &DefinitionError{Set: s.name, Details: details}
	}
	return nil
}

// Result is the outcome of evaluating one record.
type Result struct {
	State    Severity  `json:"state"`
	Verdicts []Verdict `json:"verdicts"`
}

type guardOutcome struct {
	holds  bool
	failed bool
}

// Evaluate runs set against rec at the given instant. The output is a pure
// function of its inputs.
func Evaluate(rec record.Record, set RuleSet, at time.Time) Result {
	var missing []string
	for _, field := range set.required {
		if !rec.Has(field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return Result{
			State:    Unknown,
			Verdicts: []Verdict{{Severity: Unknown, Message: set.missing(rec, missing)}},
		}
	}

	env := Env{Now: at}
	verdicts := make([]Verdict, 0, 2)
	guards := make(map[string]guardOutcome)

	for _, r := range set.rules {
		if !r.Guard {
			continue
		}
		holds, err := r.When.Holds(rec, env)
		if err != nil {
			guards[r.Name] = guardOutcome{failed: true}
			verdicts = append(verdicts, failure(r, err))
			continue
		}
		guards[r.Name] = guardOutcome{holds: holds}
		if holds && !r.Silent {
			verdicts = append(verdicts, fire(r, rec))
		}
	}

	for _, r := range set.rules {
		if r.Guard {
			continue
		}
		if r.Gate != nil {
			g := guards[r.Gate.Guard]
			if g.failed || g.holds != r.Gate.When {
				continue
			}
		}
		holds, err := r.When.Holds(rec, env)
		if err != nil {
			verdicts = append(verdicts, failure(r, err))
			continue
		}
		if !holds {
			continue
		}
		verdicts = append(verdicts, fire(r, rec))
		if r.Halt {
			break
		}
	}

	if len(verdicts) == 0 {
		verdicts = append(verdicts, Verdict{Severity: OK, Message: set.ok(rec)})
	}
	return Result{State: Aggregate(verdicts), Verdicts: verdicts}
}

func fire(r Rule, rec record.Record) Verdict {
	return Verdict{Severity: r.Severity, Message: r.Message(rec), Rule: r.Name}
}

func failure(r Rule, err error) Verdict {
	name := r.Name
	if name == "" {
		name = r.When.String()
	}
	return Verdict{Severity: Unknown, Message: fmt.Sprintf("%s: %v", name, err), Rule: r.Name}
}

// UnknownResult builds the single-verdict result used when a record could not be
// constructed at all.
func UnknownResult(cause string) Result {
	return Result{State: Unknown, Verdicts: []Verdict{{Severity: Unknown, Message: cause}}}
}
