package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"powerwatch-backend/internal/record"
	"powerwatch-backend/internal/source"
)

const setRowsMethod = "telemetry.set_rows"

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type setRowsParams struct {
	Device string           `json:"device"`
	Table  string           `json:"table"`
	Rows   []source.WireRow `json:"rows"`
}

// rpcHandler serves fixture rows over the same JSON-RPC method the worker's
// rpc source calls, plus a scripting method to swap rows at runtime.
type rpcHandler struct {
	src     *source.StaticSource
	logger  *slog.Logger
	timeout time.Duration
}

func (h *rpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeRPCError(w, nil, http.StatusMethodNotAllowed, -32600, "method not allowed")
		return
	}
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, http.StatusBadRequest, -32700, "invalid json")
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCError(w, req.ID, http.StatusBadRequest, -32600, "invalid request")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	switch req.Method {
	case source.FetchRowsMethod:
		var params source.Request
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Device == "" || params.Table.Name == "" {
			writeRPCError(w, req.ID, http.StatusBadRequest, -32602, "invalid params")
			return
		}
		rows, err := h.src.Fetch(ctx, params)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, source.ErrUnknownDevice) || errors.Is(err, source.ErrUnknownTable) {
				status = http.StatusNotFound
			}
			writeRPCError(w, req.ID, status, -32603, err.Error())
			return
		}
		out := make([]source.WireRow, 0, len(rows))
		for _, row := range rows {
			out = append(out, source.EncodeRow(row))
		}
		h.logger.Info("rows served", slog.String("device", params.Device), slog.String("table", params.Table.Name))
		writeRPCResult(w, req.ID, source.FetchRowsResult{Rows: out})
	case setRowsMethod:
		var params setRowsParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Device == "" || params.Table == "" {
			writeRPCError(w, req.ID, http.StatusBadRequest, -32602, "invalid params")
			return
		}
		rows := make([]record.RawRow, 0, len(params.Rows))
		for _, wr := range params.Rows {
			row, err := source.DecodeRow(wr)
			if err != nil {
				writeRPCError(w, req.ID, http.StatusBadRequest, -32602, err.Error())
				return
			}
			rows = append(rows, row)
		}
		h.src.Set(params.Device, params.Table, rows)
		writeRPCResult(w, req.ID, map[string]int{"rows": len(rows)})
	default:
		writeRPCError(w, req.ID, http.StatusNotFound, -32601, "method not found")
	}
}

func writeRPCResult(w http.ResponseWriter, id any, result any) {
	writeRPC(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeRPCError(w http.ResponseWriter, id any, status int, code int, message string) {
	writeRPC(w, status, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func writeRPC(w http.ResponseWriter, status int, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
