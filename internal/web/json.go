package web

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

const defaultDosingLimit = 20

// ErrorJSON is the body of every failed API call.
type ErrorJSON struct {
	Error string `json:"error"`
}

// CycleJSON is the response to a cycle start.
type CycleJSON struct {
	StartTime int64  `json:"start_time"`
	Started   string `json:"started"`
}

// OffsetJSON is the request and response body for the acidity trim.
type OffsetJSON struct {
	Offset *float64 `json:"offset"`
}

// DosingJSON lists recent activations.
type DosingJSON struct {
	Entries []DosingEntryJSON `json:"entries"`
}

// DosingEntryJSON is one journal entry with a readable age.
type DosingEntryJSON struct {
	ID    string `json:"id"`
	Group string `json:"group"`
	Label string `json:"label"`
	Time  string `json:"time"`
	Ago   string `json:"ago"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, ErrorJSON{Error: err.Error()})
}

func (s *Server) handleCycleStart(w http.ResponseWriter, r *http.Request) {
	start, err := s.deps.Cycle.Start()
	if err != nil {
		s.log.Error("start growth cycle", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("growth cycle started", "start", start, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, CycleJSON{
		StartTime: start,
		Started:   time.Unix(start, 0).UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleOffset(w http.ResponseWriter, r *http.Request) {
	var req OffsetJSON
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Offset == nil {
		writeError(w, http.StatusBadRequest, errors.New("missing offset"))
		return
	}
	if math.Abs(*req.Offset) > 14 {
		writeError(w, http.StatusBadRequest, errors.New("offset out of range"))
		return
	}
	if err := s.deps.Offset.SetAcidityOffset(*req.Offset); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.log.Info("acidity offset updated", "offset", *req.Offset)
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleDosing(w http.ResponseWriter, r *http.Request) {
	limit := defaultDosingLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	entries, err := s.deps.Journal.Journal(limit)
	if err != nil {
		s.log.Error("read dosing journal", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := DosingJSON{Entries: make([]DosingEntryJSON, 0, len(entries))}
	for _, e := range entries {
		at := time.Unix(e.Time, 0)
		out.Entries = append(out.Entries, DosingEntryJSON{
			ID:    e.ID,
			Group: e.Group,
			Label: e.Label,
			Time:  at.UTC().Format(time.RFC3339),
			Ago:   humanize.Time(at),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
