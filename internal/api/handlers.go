package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"ChainFL/internal/artifact"
	"ChainFL/internal/coordinator"
	"ChainFL/internal/journal"
)

const (
	// defaultReportLimit is the number of reports /rounds returns without ?limit.
	defaultReportLimit = 20
)

// submitRequest is the body of POST /submit-update.
type submitRequest struct {
	ClientID    string `json:"clientId"`
	WeightsPath string `json:"weightsPath"`
	WeightsHash string `json:"weightsHash"`
	WeightsSize uint64 `json:"weightsSize"`
	Round       uint64 `json:"round,omitempty"` // Round is optional; 0 targets the current round
}

// currentRoundResponse is the body of GET /current-round.
type currentRoundResponse struct {
	Round           uint64 `json:"round"`
	GlobalModelHash string `json:"globalModelHash"`
	GlobalModelURI  string `json:"globalModelUri"`
	State           string `json:"state,omitempty"`
}

// reportResponse adds the participating update indices to a report.
type reportResponse struct {
	journal.Report
	Participants []uint `json:"participants"`
}

// handleSubmit handles POST /submit-update.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, coordinator.Outcome{
			Reason:  coordinator.ReasonMissingMetadata,
			Message: fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}

	out := s.cfg.Coordinator.Submit(r.Context(), coordinator.Submission{
		ClientID: strings.TrimSpace(req.ClientID),
		Weights: artifact.ContentRef{
			URI:    strings.TrimSpace(req.WeightsPath),
			SHA256: strings.ToLower(strings.TrimSpace(req.WeightsHash)),
		},
		Size:  req.WeightsSize,
		Round: req.Round,
	})

	writeJSON(w, outcomeStatus(out), out)
}

// outcomeStatus maps a submission outcome to an HTTP status.
func outcomeStatus(out coordinator.Outcome) int {
	switch {
	case out.Success:
		return http.StatusOK
	case out.Reason == coordinator.ReasonLedgerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// handleCurrentRound handles GET /current-round. The ledger is authoritative.
func (s *Server) handleCurrentRound(w http.ResponseWriter, r *http.Request) {
	round, err := s.cfg.Ledger.CurrentRound(r.Context())
	if err != nil {
		s.log.Warn("current round unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	if round == 0 {
		writeJSON(w, http.StatusOK, currentRoundResponse{})
		return
	}

	info, err := s.cfg.Ledger.GetRound(r.Context(), round)
	if err != nil {
		s.log.Warn("round info unavailable", "round", round, "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, currentRoundResponse{
		Round:           round,
		GlobalModelHash: info.GlobalModel.SHA256,
		GlobalModelURI:  info.GlobalModel.URI,
		State:           info.State.String(),
	})
}

// handleCloseRound handles POST /close-round.
func (s *Server) handleCloseRound(w http.ResponseWriter, r *http.Request) {
	status := s.cfg.Coordinator.Status()

	if !s.cfg.Coordinator.CloseNow() {
		writeError(w, http.StatusConflict, fmt.Sprintf("round %d is not collecting (%s)", status.Round, status.Phase))
		return
	}

	s.log.Info("manual close requested", "round", status.Round, "remote", r.RemoteAddr)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"round":   status.Round,
		"closing": true,
	})
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Coordinator.Status())
}

// handleHealth handles GET /health. A halted coordinator is unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.cfg.Coordinator.Status()

	if status.Phase == coordinator.PhaseHalted.String() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "halted",
			"error":  status.LastError,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReports handles GET /rounds.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Reports == nil {
		writeError(w, http.StatusNotFound, "round history is not recorded")
		return
	}

	limit := defaultReportLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	reports, err := s.cfg.Reports.Reports(r.Context(), limit)
	if err != nil {
		s.log.Error("list reports failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list reports failed")
		return
	}

	out := make([]reportResponse, len(reports))
	for i, rep := range reports {
		out[i] = reportResponse{Report: rep, Participants: rep.IncludedIndices()}
	}

	writeJSON(w, http.StatusOK, out)
}

// handleReport handles GET /rounds/{round}.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Reports == nil {
		writeError(w, http.StatusNotFound, "round history is not recorded")
		return
	}

	round, err := strconv.ParseUint(mux.Vars(r)["round"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round")
		return
	}

	rep, err := s.cfg.Reports.Report(r.Context(), round)
	if errors.Is(err, journal.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no report for round %d", round))
		return
	}
	if err != nil {
		s.log.Error("read report failed", "round", round, "error", err)
		writeError(w, http.StatusInternalServerError, "read report failed")
		return
	}

	writeJSON(w, http.StatusOK, reportResponse{Report: rep, Participants: rep.IncludedIndices()})
}
