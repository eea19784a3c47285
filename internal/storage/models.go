package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ServiceRecord struct {
	DeviceID     string    `json:"device_id"`
	Check        string    `json:"check"`
	Item         string    `json:"item"`
	Name         string    `json:"name"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

type ReportRecord struct {
	ID        int64           `json:"id"`
	PollID    uuid.UUID       `json:"poll_id"`
	DeviceID  string          `json:"device_id"`
	Check     string          `json:"check"`
	Service   string          `json:"service"`
	Item      string          `json:"item"`
	State     string          `json:"state"`
	Verdicts  json.RawMessage `json:"verdicts"`
	Metrics   json.RawMessage `json:"metrics"`
	CreatedAt time.Time       `json:"created_at"`
}
