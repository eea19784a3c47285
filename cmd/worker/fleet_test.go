package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"powerwatch-backend/internal/checks"
	"powerwatch-backend/internal/config"
	"powerwatch-backend/internal/crypto"
	"powerwatch-backend/internal/pipeline"
	"powerwatch-backend/internal/security"
)

type fakeScheduler struct {
	mu          sync.Mutex
	scheduled   map[string]pipeline.Device
	unscheduled []string
}

func (f *fakeScheduler) Schedule(dev pipeline.Device, checks []string, interval time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduled == nil {
		f.scheduled = map[string]pipeline.Device{}
	}
	f.scheduled[dev.ID] = dev
}

func (f *fakeScheduler) Unschedule(deviceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, deviceID)
	f.unscheduled = append(f.unscheduled, deviceID)
}

func newFleet(t *testing.T, jobs *fakeScheduler, dec crypto.Encryptor) (*fleet, *[]string) {
	t.Helper()
	forgotten := &[]string{}
	return &fleet{
		path:      filepath.Join(t.TempDir(), "powerwatch.yaml"),
		catalog:   checks.NewCatalog(checks.Options{}),
		limits:    security.DefaultLimits(),
		decryptor: dec,
		jobs:      jobs,
		forget:    func(id string) { *forgotten = append(*forgotten, id) },
	}, forgotten
}

func TestFleetApplyDecryptsCommunity(t *testing.T) {
	enc, err := crypto.NewAesGcmEncryptor(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sealed, _ := enc.Encrypt("private-ro")
	jobs := &fakeScheduler{}
	f, _ := newFleet(t, jobs, enc)
	err = f.apply([]config.Device{
		{ID: "cab-01", Address: "10.0.0.1", Checks: []string{"eltek_check"}, CommunityEnc: sealed, PollIntervalSeconds: 60},
		{ID: "cab-02", Address: "10.0.0.2", Checks: []string{"eltek_door"}, Community: "public", PollIntervalSeconds: 60},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobs.scheduled["cab-01"].Community != "private-ro" || jobs.scheduled["cab-02"].Community != "public" {
		t.Fatalf("unexpected communities %+v", jobs.scheduled)
	}
	if len(f.devices()) != 2 {
		t.Fatalf("expected 2 devices")
	}
}

func TestFleetRejectsEncryptedWithoutKey(t *testing.T) {
	jobs := &fakeScheduler{}
	f, _ := newFleet(t, jobs, nil)
	err := f.apply([]config.Device{{ID: "cab-01", Address: "a", Checks: []string{"eltek_check"}, CommunityEnc: "xx", PollIntervalSeconds: 60}})
	if err == nil {
		t.Fatalf("expected error without key")
	}
	if len(jobs.scheduled) != 0 {
		t.Fatalf("nothing should be scheduled on error")
	}
}

func TestFleetReloadDropsRemovedDevices(t *testing.T) {
	jobs := &fakeScheduler{}
	f, forgotten := newFleet(t, jobs, nil)
	if err := f.apply([]config.Device{
		{ID: "a", Address: "x", Checks: []string{"eltek_door"}, PollIntervalSeconds: 60},
		{ID: "b", Address: "y", Checks: []string{"eltek_door"}, PollIntervalSeconds: 60},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := "devices:\n  - id: b\n    address: y\n    checks: [eltek_door]\n  - id: c\n    checks: [kea_check]\n"
	if err := os.WriteFile(f.path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := f.reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	ids := make([]string, 0, len(jobs.scheduled))
	for id := range jobs.scheduled {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Fatalf("unexpected scheduled devices %v", ids)
	}
	if len(*forgotten) != 1 || (*forgotten)[0] != "a" {
		t.Fatalf("expected device a forgotten, got %v", *forgotten)
	}
}

func TestFleetReloadKeepsJobsOnInvalidConfig(t *testing.T) {
	jobs := &fakeScheduler{}
	f, _ := newFleet(t, jobs, nil)
	if err := f.apply([]config.Device{{ID: "a", Address: "x", Checks: []string{"eltek_door"}, PollIntervalSeconds: 60}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := "devices:\n  - id: a\n    checks: [not_a_check]\n"
	if err := os.WriteFile(f.path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := f.reload(context.Background()); err == nil {
		t.Fatalf("expected reload error")
	}
	if _, ok := jobs.scheduled["a"]; !ok || len(jobs.unscheduled) != 0 {
		t.Fatalf("existing jobs should survive a bad reload")
	}
}
