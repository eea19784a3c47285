package source

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"powerwatch-backend/internal/record"
)

// Fixtures maps device id -> table name -> rows. Binary fields can be written
// in YAML with the !!binary tag.
type Fixtures map[string]map[string][][]string

func LoadFixtures(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Devices Fixtures `yaml:"devices"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Devices) == 0 {
		return nil, fmt.Errorf("no fixture devices in %s", path)
	}
	return doc.Devices, nil
}

// StaticSource serves fixture rows. Rows can be replaced at runtime, which
// the simulator uses to script scenarios.
type StaticSource struct {
	mu       sync.RWMutex
	fixtures Fixtures
}

func NewStaticSource(f Fixtures) *StaticSource {
	if f == nil {
		f = Fixtures{}
	}
	return &StaticSource{fixtures: f}
}

func (s *StaticSource) Set(device, table string, rows []record.RawRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fixtures[device] == nil {
		s.fixtures[device] = map[string][][]string{}
	}
	stored := make([][]string, 0, len(rows))
	for _, r := range rows {
		stored = append(stored, append([]string(nil), r...))
	}
	s.fixtures[device][table] = stored
}

func (s *StaticSource) Fetch(ctx context.Context, req Request) ([]record.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tables, ok := s.fixtures[req.Device]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, req.Device)
	}
	rows, ok := tables[req.Table.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownTable, req.Table.Name, req.Device)
	}
	out := make([]record.RawRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, append(record.RawRow(nil), r...))
	}
	return out, nil
}
