package rules

import (
	"errors"
	"strings"
	"testing"
	"time"

	"powerwatch-backend/internal/record"
)

var (
	tuesdayMorning  = time.Date(2024, time.March, 12, 10, 0, 0, 0, time.UTC)
	saturdayMorning = time.Date(2024, time.March, 16, 10, 0, 0, 0, time.UTC)
	tuesdayNight    = time.Date(2024, time.March, 12, 22, 0, 0, 0, time.UTC)
)

func powerRecord(overrides map[string]record.Value) record.Record {
	fields := map[string]record.Value{
		"battery_fuse_status": record.String("1"),
		"battery_health":      record.Int(100),
		"mains_voltage":       record.Int(230),
		"rectifier_status":    record.String("1"),
		"battery_temp":        record.Int(80),
	}
	for k, v := range overrides {
		fields[k] = v
	}
	b := record.NewBuilder("power", "")
	for k, v := range fields {
		b.Set(k, v)
	}
	return b.Build()
}

func powerRules(t *testing.T) RuleSet {
	t.Helper()
	set, err := NewRuleSet("power",
		[]string{"battery_fuse_status", "battery_health", "mains_voltage", "rectifier_status", "battery_temp"},
		[]Rule{
			{Name: "mains_down", Guard: true, When: Compare("mains_voltage", "<=", 100), Severity: Warning, Message: Text("Power Outage - Running on Batt")},
			{Name: "fuse", When: Abnormal("battery_fuse_status", "1"), Severity: Warning, Message: Text("Battery Fuse is Open"), Gate: &Gate{Guard: "mains_down"}},
			{Name: "health", When: Compare("battery_health", "<", 90), Severity: Warning, Message: Text("Battery Health Less than 100%"), Gate: &Gate{Guard: "mains_down"}},
			{Name: "rectifier", When: Abnormal("rectifier_status", "1"), Severity: Warning, Message: Text("Rectifier Status is Critical"), Gate: &Gate{Guard: "mains_down"}},
			{Name: "temp_warn", When: Compare("battery_temp", ">=", 125), Severity: Warning, Message: Text("Battery Temp is High")},
			{Name: "temp_crit", When: Compare("battery_temp", ">=", 140), Severity: Critical, Message: Text("Battery Temp is Critical")},
		},
		Text("Power Check Ok"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return set
}

func TestNothingFiresYieldsSingleOK(t *testing.T) {
	res := Evaluate(powerRecord(nil), powerRules(t), tuesdayMorning)
	if res.State != OK {
		t.Fatalf("expected OK got %s", res.State)
	}
	if len(res.Verdicts) != 1 || res.Verdicts[0].Message != "Power Check Ok" {
		t.Fatalf("unexpected verdicts %+v", res.Verdicts)
	}
}

func TestMissingFieldsShortCircuit(t *testing.T) {
	rec := record.NewBuilder("power", "").
		Set("battery_health", record.Int(10)).
		Set("battery_temp", record.Null()).
		Build()
	res := Evaluate(rec, powerRules(t), tuesdayMorning)
	if res.State != Unknown {
		t.Fatalf("expected UNKNOWN got %s", res.State)
	}
	if len(res.Verdicts) != 1 {
		t.Fatalf("expected one verdict got %+v", res.Verdicts)
	}
	msg := res.Verdicts[0].Message
	for _, field := range []string{"battery_fuse_status", "mains_voltage", "rectifier_status", "battery_temp"} {
		if !strings.Contains(msg, field) {
			t.Fatalf("expected %s in %q", field, msg)
		}
	}
	if strings.Contains(msg, "battery_health") {
		t.Fatalf("present field reported missing: %q", msg)
	}
}

func TestBatteryHealthBelowThresholdWarns(t *testing.T) {
	res := Evaluate(powerRecord(map[string]record.Value{"battery_health": record.Int(85)}), powerRules(t), tuesdayMorning)
	if res.State != Warning {
		t.Fatalf("expected WARN got %s", res.State)
	}
	if len(res.Verdicts) != 1 || !strings.HasPrefix(res.Verdicts[0].Message, "Battery Health") {
		t.Fatalf("unexpected verdicts %+v", res.Verdicts)
	}
}

func TestGuardSuppressesGatedRules(t *testing.T) {
	rec := powerRecord(map[string]record.Value{
		"mains_voltage":    record.Int(90),
		"rectifier_status": record.String("0"),
		"battery_health":   record.Int(10),
	})
	res := Evaluate(rec, powerRules(t), tuesdayMorning)
	if len(res.Verdicts) != 1 {
		t.Fatalf("expected only the guard verdict, got %+v", res.Verdicts)
	}
	if res.Verdicts[0].Rule != "mains_down" || res.State != Warning {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGatedRulesRunWhenGuardClear(t *testing.T) {
	rec := powerRecord(map[string]record.Value{"rectifier_status": record.String("7")})
	res := Evaluate(rec, powerRules(t), tuesdayMorning)
	if len(res.Verdicts) != 1 || res.Verdicts[0].Rule != "rectifier" {
		t.Fatalf("unexpected verdicts %+v", res.Verdicts)
	}
}

func TestTwoTierThresholdFiresBoth(t *testing.T) {
	res := Evaluate(powerRecord(map[string]record.Value{"battery_temp": record.Int(141)}), powerRules(t), tuesdayMorning)
	if len(res.Verdicts) != 2 {
		t.Fatalf("expected two verdicts got %+v", res.Verdicts)
	}
	if res.Verdicts[0].Severity != Warning || res.Verdicts[1].Severity != Critical {
		t.Fatalf("unexpected order %+v", res.Verdicts)
	}
	if res.State != Critical {
		t.Fatalf("expected CRIT got %s", res.State)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	rec := powerRecord(map[string]record.Value{"battery_temp": record.Int(141), "rectifier_status": record.String("0")})
	set := powerRules(t)
	first := Evaluate(rec, set, tuesdayMorning)
	for i := 0; i < 10; i++ {
		next := Evaluate(rec, set, tuesdayMorning)
		if len(next.Verdicts) != len(first.Verdicts) {
			t.Fatalf("verdict count changed")
		}
		for j := range next.Verdicts {
			if next.Verdicts[j] != first.Verdicts[j] {
				t.Fatalf("verdict %d changed: %+v vs %+v", j, next.Verdicts[j], first.Verdicts[j])
			}
		}
	}
}

func doorRules(t *testing.T) RuleSet {
	t.Helper()
	set, err := NewRuleSet("door", []string{"door"}, []Rule{
		{Name: "business_hours", Guard: true, Silent: true, When: WithinHours(DefaultBusinessHours())},
		{Name: "open_in_hours", When: Abnormal("door", "1"), Severity: Warning, Message: Text("Cabinet Door is Open"), Gate: &Gate{Guard: "business_hours", When: true}},
		{Name: "open_after_hours", When: Abnormal("door", "1"), Severity: Critical, Message: Text("Cabinet Door is Open"), Gate: &Gate{Guard: "business_hours", When: false}},
	}, Text("Cabinet Door is Closed"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return set
}

func TestBusinessHoursEscalation(t *testing.T) {
	open := record.NewBuilder("door", "").Set("door", record.String("2")).Build()
	tests := []struct {
		name string
		at   time.Time
		want Severity
	}{
		{"tuesday morning", tuesdayMorning, Warning},
		{"saturday morning", saturdayMorning, Critical},
		{"tuesday night", tuesdayNight, Critical},
	}
	for _, tt := range tests {
		res := Evaluate(open, doorRules(t), tt.at)
		if res.State != tt.want || len(res.Verdicts) != 1 {
			t.Fatalf("%s: expected single %s got %+v", tt.name, tt.want, res)
		}
	}
	closed := record.NewBuilder("door", "").Set("door", record.String("1")).Build()
	if res := Evaluate(closed, doorRules(t), saturdayMorning); res.State != OK {
		t.Fatalf("expected OK for closed door got %s", res.State)
	}
}

func TestBusinessHoursBoundaries(t *testing.T) {
	hours := DefaultBusinessHours()
	if !hours.Contains(time.Date(2024, time.March, 12, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("08:00 should be inside")
	}
	if hours.Contains(time.Date(2024, time.March, 12, 17, 0, 0, 0, time.UTC)) {
		t.Fatalf("17:00 should be outside")
	}
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	hours.Location = ny
	// 14:00 UTC is 10:00 in New York during daylight saving time
	if !hours.Contains(time.Date(2024, time.June, 11, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected inside hours in New York")
	}
}

func TestHaltStopsRemainingRules(t *testing.T) {
	set, err := NewRuleSet("battery", []string{"soc", "temp"}, []Rule{
		{Name: "soc_low", When: Compare("soc", "<", 40).Scaled(100), Severity: Warning, Message: Text("SOC LOW"), Halt: true},
		{Name: "temp_high", When: Compare("temp", ">", 122).Scaled(10).Converted(func(c float64) float64 { return c*9/5 + 32 }), Severity: Warning, Message: Text("TEMP HIGH")},
	}, Text("OK"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := record.NewBuilder("battery", "1").Set("soc", record.Int(3000)).Set("temp", record.Int(600)).Build()
	res := Evaluate(rec, set, tuesdayMorning)
	if len(res.Verdicts) != 1 || res.Verdicts[0].Rule != "soc_low" {
		t.Fatalf("unexpected verdicts %+v", res.Verdicts)
	}
	rec = record.NewBuilder("battery", "1").Set("soc", record.Int(9000)).Set("temp", record.Int(600)).Build()
	res = Evaluate(rec, set, tuesdayMorning)
	if len(res.Verdicts) != 1 || res.Verdicts[0].Rule != "temp_high" {
		t.Fatalf("unexpected verdicts %+v", res.Verdicts)
	}
}

func TestPredicateErrorBecomesUnknown(t *testing.T) {
	set, err := NewRuleSet("text", nil, []Rule{
		{Name: "numeric", When: Compare("label", ">", 1), Severity: Warning, Message: Text("high")},
		{Name: "status", When: Abnormal("label", "1"), Severity: Critical, Message: Text("abnormal")},
	}, Text("OK"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := record.NewBuilder("text", "").Set("label", record.String("abc")).Build()
	res := Evaluate(rec, set, tuesdayMorning)
	if res.State != Unknown || len(res.Verdicts) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Verdicts[1].Severity != Critical {
		t.Fatalf("evaluation should continue after an error: %+v", res.Verdicts)
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		in   []Severity
		want Severity
	}{
		{nil, OK},
		{[]Severity{OK}, OK},
		{[]Severity{Warning, OK}, Warning},
		{[]Severity{Warning, Critical, Warning}, Critical},
		{[]Severity{Critical, Unknown}, Unknown},
	}
	for _, tt := range tests {
		var verdicts []Verdict
		for _, s := range tt.in {
			verdicts = append(verdicts, Verdict{Severity: s})
		}
		if got := Aggregate(verdicts); got != tt.want {
			t.Fatalf("%v: expected %s got %s", tt.in, tt.want, got)
		}
	}
}

func TestNewRuleSetRejectsBadDefinitions(t *testing.T) {
	_, err := NewRuleSet("bad", nil, []Rule{
		{Name: "g", Guard: true, When: Compare("a", ">", 1), Severity: Warning, Message: Text("g"), Gate: &Gate{Guard: "g"}},
		{Name: "r", When: Compare("a", ">", 1), Severity: Warning, Message: Text("r"), Gate: &Gate{Guard: "nope"}},
		{Name: "r", Severity: OK, Silent: true},
	}, nil)
	var defErr *DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected definition error got %v", err)
	}
	if len(defErr.Details) < 5 {
		t.Fatalf("expected all problems reported, got %v", defErr.Details)
	}
}

func TestSeverityText(t *testing.T) {
	for _, s := range []Severity{OK, Warning, Critical, Unknown} {
		b, _ := s.MarshalText()
		var back Severity
		if err := back.UnmarshalText(b); err != nil || back != s {
			t.Fatalf("round trip %s failed: %v", s, err)
		}
	}
	if _, err := ParseSeverity("bogus"); err == nil {
		t.Fatalf("expected error")
	}
}
