package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"powerwatch-backend/internal/checks"
	"powerwatch-backend/internal/pipeline"
	"powerwatch-backend/internal/record"
	"powerwatch-backend/internal/source"
)

func naradaFields() []string {
	return []string{
		"1:BattSOC", "1:BattTempInt", "1:BattTempAmb", "1:BattRemCap", "2:BattSOC", "2:BattTempInt", "2:BattTempAmb", "2:BattRemCap",
		"9000", "250", "240", "1005", "3000", "250", "240", "1005",
		"%", "C", "C", "Ah", "%", "C", "C", "Ah",
	}
}

func newTestHandler(runner *pipeline.Runner) *Handler {
	h := NewHandler(checks.NewCatalog(checks.Options{}), runner)
	h.Now = func() time.Time { return time.Date(2024, time.March, 12, 10, 0, 0, 0, time.UTC) }
	return h
}

func post(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

type reportsResponse struct {
	Reports []struct {
		Service string `json:"service"`
		Item    string `json:"item"`
		State   string `json:"state"`
	} `json:"reports"`
}

func TestEvaluateWithRows(t *testing.T) {
	h := newTestHandler(nil)
	body, _ := json.Marshal(map[string]any{
		"check": "narada_battery_table",
		"rows":  []source.WireRow{{Fields: naradaFields()}},
	})
	rec := post(t, h.HandleEvaluate, string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp reportsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Reports) != 2 {
		t.Fatalf("expected one report per battery got %+v", resp.Reports)
	}
	if resp.Reports[0].State != "OK" || resp.Reports[1].State != "WARN" {
		t.Fatalf("expected low charge battery to warn got %+v", resp.Reports)
	}
}

func TestEvaluateShapeErrorBecomesUnknown(t *testing.T) {
	h := newTestHandler(nil)
	rec := post(t, h.HandleEvaluate, `{"check":"narada_battery_table","rows":[{"fields":["a","b"]}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp reportsResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Reports) != 1 || resp.Reports[0].State != "UNKNOWN" {
		t.Fatalf("expected single UNKNOWN report got %+v", resp.Reports)
	}
}

func TestEvaluateThroughSource(t *testing.T) {
	src := &source.MockSource{Rows: map[string][]record.RawRow{"narada_battery_table": {naradaFields()}}}
	h := newTestHandler(pipeline.NewRunner(src, checks.NewCatalog(checks.Options{})))
	rec := post(t, h.HandleEvaluate, `{"check":"narada_battery_table","device":{"id":"site-1","address":"10.0.0.1"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if src.Calls() != 1 {
		t.Fatalf("expected one fetch, got %d", src.Calls())
	}
}

func TestDiscoverWithRows(t *testing.T) {
	h := newTestHandler(nil)
	body, _ := json.Marshal(map[string]any{
		"check": "narada_battery_table",
		"rows":  []source.WireRow{{Fields: naradaFields()}},
	})
	rec := post(t, h.HandleDiscover, string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Services []struct {
			Item string `json:"item"`
			Name string `json:"name"`
		} `json:"services"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp.Services) != 2 || resp.Services[0].Item != "1" {
		t.Fatalf("unexpected services %+v", resp.Services)
	}
}

func TestDiscoverShapeErrorIsUnprocessable(t *testing.T) {
	h := newTestHandler(nil)
	rec := post(t, h.HandleDiscover, `{"check":"narada_battery_table","rows":[{"fields":["a","b"]}]}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}

func TestRequestContract(t *testing.T) {
	h := newTestHandler(nil)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown field", `{"check":"kea_check","bogus":1}`, http.StatusBadRequest},
		{"trailing data", `{"check":"kea_check"} {}`, http.StatusBadRequest},
		{"missing check", `{"rows":[]}`, http.StatusBadRequest},
		{"unknown check", `{"check":"nope"}`, http.StatusNotFound},
		{"rows and device", `{"check":"kea_check","rows":[{"fields":["x"]}],"device":{"id":"a"}}`, http.StatusBadRequest},
		{"device without id", `{"check":"kea_check","device":{"address":"x"}}`, http.StatusBadRequest},
		{"device without source", `{"check":"kea_check","device":{"id":"a"}}`, http.StatusBadRequest},
		{"bad binary index", `{"check":"kea_check","rows":[{"fields":["x"],"binary":[3]}]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := post(t, h.HandleEvaluate, tt.body)
		if rec.Code != tt.want {
			t.Fatalf("%s: expected %d got %d: %s", tt.name, tt.want, rec.Code, rec.Body.String())
		}
	}
}

func TestMethodsEnforced(t *testing.T) {
	h := newTestHandler(nil)
	for name, handler := range map[string]http.HandlerFunc{
		"evaluate": h.HandleEvaluate,
		"discover": h.HandleDiscover,
	} {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405 got %d", name, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	h.HandleChecks(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("checks: expected 405 got %d", rec.Code)
	}
}

func TestChecksAndHealth(t *testing.T) {
	h := newTestHandler(nil)
	rec := httptest.NewRecorder()
	h.HandleChecks(rec, httptest.NewRequest(http.MethodGet, "/checks", nil))
	var list []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil || len(list) == 0 {
		t.Fatalf("expected check list, got %v %v", list, err)
	}
	rec = httptest.NewRecorder()
	handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}
