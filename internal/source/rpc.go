package source

import (
	"context"
	"encoding/json"
	"fmt"

	"powerwatch-backend/internal/record"
)

const FetchRowsMethod = "telemetry.fetch_rows"

type FetchRowsResult struct {
	Rows []WireRow `json:"rows"`
}

// RPCSource fetches rows through a JSON-RPC telemetry endpoint.
type RPCSource struct {
	Transport Transport
}

func NewRPCSource(transport Transport) *RPCSource {
	return &RPCSource{Transport: transport}
}

func (s *RPCSource) Fetch(ctx context.Context, req Request) ([]record.RawRow, error) {
	resp, err := s.Transport.Call(ctx, FetchRowsMethod, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s from %s: %w", req.Table.Name, req.Device, err)
	}
	var result FetchRowsResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}
	rows := make([]record.RawRow, 0, len(result.Rows))
	for _, w := range result.Rows {
		row, err := DecodeRow(w)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
