package main

import (
	"time"

	"powerwatch-backend/internal/pipeline"
	"powerwatch-backend/internal/record"
	"powerwatch-backend/internal/source"
)

type deviceRequest struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Community string `json:"community"`
}

func (d deviceRequest) device() pipeline.Device {
	return pipeline.Device{ID: d.ID, Name: d.ID, Address: d.Address, Community: d.Community}
}

// checkRequest carries either already fetched rows or a device to fetch
// them from through the configured telemetry source.
type checkRequest struct {
	Check  string           `json:"check"`
	Rows   []source.WireRow `json:"rows"`
	Device *deviceRequest   `json:"device"`
	At     *time.Time       `json:"at"`
}

func (c checkRequest) rawRows() ([]record.RawRow, error) {
	rows := make([]record.RawRow, 0, len(c.Rows))
	for _, w := range c.Rows {
		row, err := source.DecodeRow(w)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
