package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"powerwatch-backend/internal/checks"
	"powerwatch-backend/internal/config"
	"powerwatch-backend/internal/crypto"
	"powerwatch-backend/internal/pipeline"
	"powerwatch-backend/internal/security"
	"powerwatch-backend/internal/validation"
)

type jobScheduler interface {
	Schedule(dev pipeline.Device, checks []string, interval time.Duration)
	Unschedule(deviceID string)
}

// fleet keeps the scheduled jobs in line with the device list of the config
// file. Only devices are reloaded; source, hours and sinks need a restart.
type fleet struct {
	mu        sync.RWMutex
	path      string
	current   []config.Device
	catalog   *checks.Catalog
	limits    security.Limits
	decryptor crypto.Encryptor
	jobs      jobScheduler
	forget    func(deviceID string)
}

func (f *fleet) devices() []config.Device {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]config.Device(nil), f.current...)
}

func (f *fleet) reload(ctx context.Context) error {
	cfg, err := config.Load(f.path)
	if err != nil {
		return err
	}
	return f.apply(cfg.Devices)
}

func (f *fleet) apply(devices []config.Device) error {
	if err := validation.ValidateConfig(&config.Config{Devices: devices}, f.catalog, f.limits); err != nil {
		return err
	}
	resolved := make([]pipeline.Device, len(devices))
	for i, d := range devices {
		dev, err := resolveDevice(d, f.decryptor)
		if err != nil {
			return err
		}
		resolved[i] = dev
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	keep := map[string]bool{}
	for _, d := range devices {
		keep[d.ID] = true
	}
	for _, old := range f.current {
		if keep[old.ID] {
			continue
		}
		f.jobs.Unschedule(old.ID)
		if f.forget != nil {
			f.forget(old.ID)
		}
	}
	for i, d := range devices {
		f.jobs.Schedule(resolved[i], d.Checks, d.PollInterval())
	}
	f.current = devices
	return nil
}

func resolveDevice(d config.Device, dec crypto.Encryptor) (pipeline.Device, error) {
	dev := pipeline.Device{ID: d.ID, Name: d.Name, Address: d.Address, Community: d.Community}
	if d.CommunityEnc == "" {
		return dev, nil
	}
	if dec == nil {
		return pipeline.Device{}, fmt.Errorf("device %s: community_enc set but no encryption key configured", d.ID)
	}
	plain, err := dec.Decrypt(d.CommunityEnc)
	if err != nil {
		return pipeline.Device{}, fmt.Errorf("device %s: decrypt community: %w", d.ID, err)
	}
	dev.Community = plain
	return dev, nil
}
