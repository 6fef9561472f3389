// Package http provides an HTTP API facade for the segment store, mirroring
// internal/api/grpc's Service over plain JSON instead of gRPC framing.
package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	segrpc "github.com/vaultds/segmentstore/internal/api/grpc"
)

// FlushHandler handles POST /v1/flush requests: one flush attempt against a
// single (partition, segment).
type FlushHandler struct {
	service *segrpc.Service
}

// NewFlushHandler creates a FlushHandler delegating to service.
func NewFlushHandler(service *segrpc.Service) *FlushHandler {
	return &FlushHandler{service: service}
}

// ServeHTTP handles the flush HTTP request.
func (h *FlushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req segrpc.FlushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	if req.Partition == "" || req.Segment == "" {
		writeError(w, http.StatusBadRequest, "partition and segment are required", requestID)
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "rows must not be empty", requestID)
		return
	}

	resp, err := h.service.Flush(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("flush failed: %v", err), requestID)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ReadRowsHandler handles POST /v1/read requests: the current logical rows
// of a segment, projected to the requested columns, as a single JSON array
// rather than a streamed response (no chunked-transfer framing over plain
// JSON the way internal/api/grpc streams over ReadRows).
type ReadRowsHandler struct {
	service *segrpc.Service
}

// NewReadRowsHandler creates a ReadRowsHandler delegating to service.
func NewReadRowsHandler(service *segrpc.Service) *ReadRowsHandler {
	return &ReadRowsHandler{service: service}
}

// ServeHTTP handles the read HTTP request.
func (h *ReadRowsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req segrpc.ReadRowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	if req.Partition == "" || req.Segment == "" {
		writeError(w, http.StatusBadRequest, "partition and segment are required", requestID)
		return
	}

	collector := &collectingStream{ctx: r.Context()}
	if err := h.service.ReadRows(&req, collector); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("read failed: %v", err), requestID)
		return
	}

	writeJSON(w, http.StatusOK, collector.rows)
}
