package security

import (
	"strings"
	"testing"

	"powerwatch-backend/internal/record"
)

func TestCheckRows(t *testing.T) {
	limits := Limits{MaxRows: 2, MaxRowFields: 3, MaxFieldBytes: 4}
	tests := []struct {
		rows []record.RawRow
		ok   bool
	}{
		{[]record.RawRow{{"1", "2", "3"}}, true},
		{[]record.RawRow{{"1"}, {"2"}, {"3"}}, false},
		{[]record.RawRow{{"1", "2", "3", "4"}}, false},
		{[]record.RawRow{{strings.Repeat("x", 5)}}, false},
	}
	for i, tt := range tests {
		if err := limits.CheckRows(tt.rows); (err == nil) != tt.ok {
			t.Fatalf("case %d: unexpected result %v", i, err)
		}
	}
}

func TestCheckPollInterval(t *testing.T) {
	limits := DefaultLimits()
	if err := limits.CheckPollInterval(60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := limits.CheckPollInterval(1); err == nil {
		t.Fatalf("expected error for short interval")
	}
}
