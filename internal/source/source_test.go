package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"powerwatch-backend/internal/checks"
	"powerwatch-backend/internal/record"
	"powerwatch-backend/internal/security"
)

var packed = string([]byte{0x00, 0xf1, 0x53, 0x65, 0x00, 0x00, 0x00, 0x00})

func TestWireRowRoundTrip(t *testing.T) {
	row := record.RawRow{"SmartPack S", "1\x00", packed, ""}
	wire := EncodeRow(row)
	if len(wire.Binary) != 1 || wire.Binary[0] != 2 {
		t.Fatalf("expected only field 2 marked binary, got %v", wire.Binary)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back WireRow
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, err := DecodeRow(back)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range row {
		if got[i] != row[i] {
			t.Fatalf("field %d: %q != %q", i, got[i], row[i])
		}
	}
}

func TestDecodeRowRejectsBadIndex(t *testing.T) {
	if _, err := DecodeRow(WireRow{Fields: []string{"a"}, Binary: []int{3}}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := DecodeRow(WireRow{Fields: []string{"%%%"}, Binary: []int{0}}); err == nil {
		t.Fatalf("expected base64 error")
	}
}

func TestRPCSourceOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string  `json:"method"`
			Params Request `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Method != FetchRowsMethod || req.Params.Table.Name != "eltek_door_config" {
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"no such table"}}`))
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": 1, "result": FetchRowsResult{Rows: []WireRow{EncodeRow(record.RawRow{"1", packed})}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	src := NewRPCSource(&HTTPTransport{Endpoint: srv.URL, Timeout: DefaultTimeout})
	rows, err := src.Fetch(context.Background(), Request{Device: "cab-01", Table: checks.Table{Name: "eltek_door_config"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "1" || rows[0][1] != packed {
		t.Fatalf("unexpected rows %q", rows)
	}

	_, err = src.Fetch(context.Background(), Request{Device: "cab-01", Table: checks.Table{Name: "other"}})
	var rpcErr *rpcError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32601 {
		t.Fatalf("expected rpc error, got %v", err)
	}
}

func TestStdioTransport(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	tr := &StdioTransport{Command: sh, Args: []string{"-c", `cat >/dev/null; printf '{"jsonrpc":"2.0","id":1,"result":{"rows":[{"fields":["1"]}]}}'`}}
	rows, err := NewRPCSource(tr).Fetch(context.Background(), Request{Device: "d", Table: checks.Table{Name: "t"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "1" {
		t.Fatalf("unexpected rows %q", rows)
	}
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(Fixtures{"cab-01": {"eltek_door_config": {{"1"}}}})
	rows, err := src.Fetch(context.Background(), Request{Device: "cab-01", Table: checks.Table{Name: "eltek_door_config"}})
	if err != nil || len(rows) != 1 {
		t.Fatalf("unexpected result %q %v", rows, err)
	}
	rows[0][0] = "mutated"
	src.Set("cab-01", "eltek_gene_config", []record.RawRow{{"0"}})
	again, _ := src.Fetch(context.Background(), Request{Device: "cab-01", Table: checks.Table{Name: "eltek_door_config"}})
	if again[0][0] != "1" {
		t.Fatalf("fixture mutated through returned rows")
	}
	if _, err := src.Fetch(context.Background(), Request{Device: "nope"}); !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("expected unknown device got %v", err)
	}
	if _, err := src.Fetch(context.Background(), Request{Device: "cab-01", Table: checks.Table{Name: "nope"}}); !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("expected unknown table got %v", err)
	}
}

func TestLoadFixturesWithBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	doc := `devices:
  cab-01:
    eltek_door_config:
      - ["1"]
    test_time:
      - [!!binary APFTZQAAAAA=]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fixtures, err := LoadFixtures(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fixtures["cab-01"]["test_time"][0][0]; got != packed {
		t.Fatalf("binary fixture not decoded: %q", got)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	for _, cfg := range []Config{
		{Type: "http"},
		{Type: "stdio"},
		{Type: "static"},
		{Type: "snmp"},
	} {
		if _, err := New(cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
	if _, err := New(Config{Type: "http", Endpoint: "http://localhost:9000/rpc"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBoundedRejectsOversizedResults(t *testing.T) {
	mock := &MockSource{Rows: map[string][]record.RawRow{"t": {{"1", "2", "3"}}}}
	b := Bounded{Source: mock, Limits: security.Limits{MaxRowFields: 2}}
	if _, err := b.Fetch(context.Background(), Request{Table: checks.Table{Name: "t"}}); err == nil {
		t.Fatalf("expected limit error")
	}
	b.Limits.MaxRowFields = 3
	rows, err := b.Fetch(context.Background(), Request{Table: checks.Table{Name: "t"}})
	if err != nil || len(rows) != 1 {
		t.Fatalf("unexpected result %q %v", rows, err)
	}
}

func TestExampleFixturesLoad(t *testing.T) {
	fixtures, err := LoadFixtures(filepath.Join("..", "..", "fixtures.example.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := NewStaticSource(fixtures).Fetch(context.Background(), Request{Device: "hub-cabinet-01", Table: checks.Table{Name: "eltek_base_config"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || len(rows[0]) != 17 {
		t.Fatalf("unexpected eltek rows %+v", rows)
	}
	if len(rows[0][15]) != 8 {
		t.Fatalf("expected 8 byte packed timestamp, got %d bytes", len(rows[0][15]))
	}
}
