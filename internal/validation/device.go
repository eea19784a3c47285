package validation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"powerwatch-backend/internal/checks"
	"powerwatch-backend/internal/config"
	"powerwatch-backend/internal/pipeline"
	"powerwatch-backend/internal/security"
	"powerwatch-backend/internal/source"
)

var deviceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

type ErrorDetail struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
	Hint    string `json:"hint,omitempty"`
}

// Error collects every problem found in one device definition.
type Error struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+" "+d.Problem)
	}
	if len(parts) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// ValidateDevice checks a configured device against the catalogue and the
// scheduling limits before it is polled.
func ValidateDevice(dev config.Device, catalog *checks.Catalog, limits security.Limits) *Error {
	var details []ErrorDetail
	if !deviceIDRegex.MatchString(dev.ID) {
		details = append(details, ErrorDetail{Field: "id", Problem: "invalid", Hint: "Use letters, digits, '_', '-' or '.'"})
	}
	if err := limits.CheckPollInterval(dev.PollIntervalSeconds); err != nil {
		details = append(details, ErrorDetail{Field: "poll_interval_seconds", Problem: "out of range", Hint: fmt.Sprintf("min %d, max %d", limits.MinPollSeconds, limits.MaxPollSeconds)})
	}
	seen := map[string]bool{}
	fetches := false
	for i, name := range dev.Checks {
		field := fmt.Sprintf("checks[%d]", i)
		check, ok := catalog.Get(name)
		if !ok {
			details = append(details, ErrorDetail{Field: field, Problem: "unknown check", Hint: "One of: " + strings.Join(catalog.Names(), ", ")})
			continue
		}
		if seen[name] {
			details = append(details, ErrorDetail{Field: field, Problem: "duplicated"})
		}
		seen[name] = true
		fetches = fetches || check.Fetches()
	}
	if fetches && strings.TrimSpace(dev.Address) == "" {
		details = append(details, ErrorDetail{Field: "address", Problem: "required", Hint: "Checks that fetch telemetry need a device address"})
	}
	if len(details) > 0 {
		return &Error{Code: "DEVICE_INVALID", Message: fmt.Sprintf("device %s failed validation", dev.ID), Details: details}
	}
	return nil
}

// ValidateConfig validates every device and joins the failures.
func ValidateConfig(cfg *config.Config, catalog *checks.Catalog, limits security.Limits) error {
	var errs []error
	for _, dev := range cfg.Devices {
		if verr := ValidateDevice(dev, catalog, limits); verr != nil {
			errs = append(errs, verr)
		}
	}
	return errors.Join(errs...)
}

// RuntimeValidateDevice fetches each table once and checks the rows match the
// layout of their check.
func RuntimeValidateDevice(ctx context.Context, src source.Source, dev config.Device, catalog *checks.Catalog, limits security.Limits) error {
	for _, name := range dev.Checks {
		check, ok := catalog.Get(name)
		if !ok {
			return fmt.Errorf("%w: %s", pipeline.ErrUnknownCheck, name)
		}
		if !check.Fetches() {
			continue
		}
		fetchCtx, cancel := context.WithTimeout(ctx, limits.MaxFetchDuration)
		rows, err := src.Fetch(fetchCtx, source.Request{Device: dev.ID, Address: dev.Address, Community: dev.Community, Table: check.Table})
		cancel()
		if err != nil {
			return fmt.Errorf("%s: fetch: %w", name, err)
		}
		if err := limits.CheckRows(rows); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if _, err := check.Records(rows); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
