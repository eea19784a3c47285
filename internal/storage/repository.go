package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"powerwatch-backend/internal/discovery"
	"powerwatch-backend/internal/pipeline"
)

type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

// ReplaceServices stores the discovered services of one check on a device,
// dropping the ones no longer present.
func (r *Repository) ReplaceServices(ctx context.Context, deviceID, check string, services []discovery.Service) error {
	tx, err := r.Store.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM services WHERE device_id=$1 AND check_name=$2`, deviceID, check); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, svc := range services {
		batch.Queue(`
			INSERT INTO services (device_id, check_name, item, name, discovered_at)
			VALUES ($1,$2,$3,$4,now())`, deviceID, check, svc.Item, svc.Name)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) ListServices(ctx context.Context, deviceID string) ([]ServiceRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT device_id, check_name, item, name, discovered_at
		FROM services WHERE device_id=$1 ORDER BY check_name, item`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []ServiceRecord{}
	for rows.Next() {
		var rec ServiceRecord
		if err := rows.Scan(&rec.DeviceID, &rec.Check, &rec.Item, &rec.Name, &rec.DiscoveredAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) SaveReport(ctx context.Context, rep pipeline.Report) error {
	verdicts, err := json.Marshal(rep.Verdicts)
	if err != nil {
		return err
	}
	samples, err := json.Marshal(rep.Metrics)
	if err != nil {
		return err
	}
	_, err = r.Store.Pool.Exec(ctx, `
		INSERT INTO reports (poll_id, device_id, check_name, service, item, state, verdicts, metrics, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rep.PollID, rep.Device, rep.Check, rep.Service, rep.Item, rep.State.String(), verdicts, samples, rep.At.UTC())
	return err
}

func (r *Repository) ListReports(ctx context.Context, deviceID string, limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, poll_id, device_id, check_name, service, item, state, verdicts, metrics, created_at
		FROM reports WHERE device_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []ReportRecord{}
	for rows.Next() {
		var rec ReportRecord
		if err := rows.Scan(&rec.ID, &rec.PollID, &rec.DeviceID, &rec.Check, &rec.Service, &rec.Item, &rec.State, &rec.Verdicts, &rec.Metrics, &rec.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// LastState returns the state of the most recent report for a service.
func (r *Repository) LastState(ctx context.Context, deviceID, service string) (string, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT state FROM reports WHERE device_id=$1 AND service=$2
		ORDER BY created_at DESC, id DESC LIMIT 1`, deviceID, service)
	var state string
	if err := row.Scan(&state); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return state, nil
}
