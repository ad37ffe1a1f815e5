package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"LendLedger/internal/projection"
	"LendLedger/internal/query"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
)

// registerRoutes binds every API path to its handler. Under load the
// read endpoints go to projections; the two user endpoints read live
// core state because accrued balances cannot be projected exactly.
func (s *GRPCServer) registerRoutes(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		path    string
		handler runtime.HandlerFunc
	}{
		{http.MethodGet, "/v1/status", s.handleStatus},
		{http.MethodGet, "/v1/reserves", s.handleListReserves},
		{http.MethodGet, "/v1/reserves/{reserve}", s.handleGetReserve},
		{http.MethodGet, "/v1/reserves/{reserve}/rates", s.handleRateHistory},
		{http.MethodGet, "/v1/users/{user_id}/account", s.handleUserAccount},
		{http.MethodGet, "/v1/users/{user_id}/reserves/{reserve}", s.handleUserReserve},
		{http.MethodGet, "/v1/users/{user_id}/collateral", s.handleUserCollateral},
		{http.MethodGet, "/v1/users/{user_id}/liquidations", s.handleLiquidationHistory},
		{http.MethodGet, "/v1/users/{user_id}/journal", s.handleJournalHistory},
		{http.MethodGet, "/v1/balances/{account_path}", s.handleBalances},
		{http.MethodPost, "/v1/ingest/{event_type}", s.handleIngest},
		{http.MethodPost, "/v1/admin/rebuild-projections", s.handleRebuildProjections},
		{http.MethodPost, "/v1/admin/snapshot", s.handleTakeSnapshot},
		{http.MethodGet, "/v1/admin/integrity", s.handleVerifyIntegrity},
		{http.MethodGet, "/v1/admin/event-log", s.handleEventLogInfo},
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.path, r.handler); err != nil {
			return fmt.Errorf("%s %s: %w", r.method, r.path, err)
		}
	}
	return nil
}

// --- Read endpoints ---

func (s *GRPCServer) handleStatus(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	lastSeq, err := s.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		s.writeError(w, "status", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":                 "ready",
		"last_logged_sequence":  lastSeq,
		"uptime_seconds":        int64(time.Since(s.deps.StartTime).Seconds()),
		"started_at":            s.deps.StartTime.UTC().Format(time.RFC3339),
	})
}

func (s *GRPCServer) handleListReserves(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	reserves, err := s.deps.QueryService.ListReserves(r.Context())
	if err != nil {
		s.writeError(w, "list_reserves", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"reserves": reserves})
}

func (s *GRPCServer) handleGetReserve(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	data, err := s.deps.QueryService.GetReserveData(r.Context(), pathParams["reserve"])
	if err != nil {
		s.writeError(w, "get_reserve", err)
		return
	}
	s.writeJSON(w, http.StatusOK, data)
}

func (s *GRPCServer) handleRateHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	limit, beforeSeq, err := pageParams(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}

	history, err := s.deps.QueryService.GetRateHistory(r.Context(), pathParams["reserve"], limit, beforeSeq)
	if err != nil {
		s.writeError(w, "rate_history", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"rates": history})
}

func (s *GRPCServer) handleUserAccount(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		s.writeBadRequest(w, fmt.Errorf("invalid user_id: %w", err))
		return
	}

	data, err := s.deps.LiveQuery.GetUserAccountData(userID)
	if err != nil {
		s.writeError(w, "user_account", err)
		return
	}
	s.writeJSON(w, http.StatusOK, data)
}

func (s *GRPCServer) handleUserReserve(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		s.writeBadRequest(w, fmt.Errorf("invalid user_id: %w", err))
		return
	}

	data, err := s.deps.LiveQuery.GetUserReserveData(userID, pathParams["reserve"])
	if err != nil {
		s.writeError(w, "user_reserve", err)
		return
	}
	s.writeJSON(w, http.StatusOK, data)
}

func (s *GRPCServer) handleUserCollateral(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		s.writeBadRequest(w, fmt.Errorf("invalid user_id: %w", err))
		return
	}

	entries, err := s.deps.QueryService.GetUserCollateral(r.Context(), userID)
	if err != nil {
		s.writeError(w, "user_collateral", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"collateral": entries})
}

func (s *GRPCServer) handleLiquidationHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		s.writeBadRequest(w, fmt.Errorf("invalid user_id: %w", err))
		return
	}

	limit, beforeSeq, err := pageParams(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}

	records, err := s.deps.QueryService.GetLiquidationHistory(r.Context(), userID, limit, beforeSeq)
	if err != nil {
		s.writeError(w, "liquidation_history", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"liquidations": records})
}

func (s *GRPCServer) handleJournalHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	userID, err := uuid.Parse(pathParams["user_id"])
	if err != nil {
		s.writeBadRequest(w, fmt.Errorf("invalid user_id: %w", err))
		return
	}

	limit, beforeSeq, err := pageParams(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}

	entries, err := s.deps.QueryService.GetJournalHistory(r.Context(), userID, limit, beforeSeq)
	if err != nil {
		s.writeError(w, "journal_history", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"journal": entries})
}

func (s *GRPCServer) handleBalances(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	entries, err := s.deps.QueryService.GetBalances(r.Context(), pathParams["account_path"])
	if err != nil {
		s.writeError(w, "balances", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"balances": entries})
}

// --- Ingest ---

func (s *GRPCServer) handleIngest(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeBadRequest(w, fmt.Errorf("read body: %w", err))
		return
	}

	evt, err := s.deps.IngestService.InjectRaw(r.Context(), pathParams["event_type"], body)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted":        true,
		"event_type":      evt.EventType().String(),
		"idempotency_key": evt.IdempotencyKey(),
	})
}

// --- Admin ---

func (s *GRPCServer) handleRebuildProjections(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if err := projection.RebuildProjections(r.Context(), s.deps.DB); err != nil {
		s.writeError(w, "rebuild_projections", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"rebuilt": true})
}

func (s *GRPCServer) handleTakeSnapshot(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.deps.TakeSnapshot == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error": "snapshotting not available",
		})
		return
	}

	seq, err := s.deps.TakeSnapshot(r.Context())
	if err != nil {
		s.writeError(w, "take_snapshot", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"sequence": seq})
}

func (s *GRPCServer) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	report, err := s.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeError(w, "verify_integrity", err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *GRPCServer) handleEventLogInfo(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	lastSeq, err := s.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		s.writeError(w, "event_log_info", err)
		return
	}

	snap, err := s.deps.SnapshotMgr.LoadLatestSnapshot(r.Context())
	if err != nil {
		s.writeError(w, "event_log_info", err)
		return
	}

	resp := map[string]interface{}{"last_sequence": lastSeq}
	if snap != nil {
		resp["last_snapshot_sequence"] = snap.Sequence
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// --- helpers ---

func pageParams(r *http.Request) (int, *int64, error) {
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, nil, fmt.Errorf("invalid limit %q", v)
		}
		limit = n
	}

	var beforeSeq *int64
	if v := q.Get("before_sequence"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, nil, fmt.Errorf("invalid before_sequence %q", v)
		}
		beforeSeq = &n
	}

	return limit, beforeSeq, nil
}

func (s *GRPCServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("write response")
	}
}

func (s *GRPCServer) writeBadRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
}

func (s *GRPCServer) writeError(w http.ResponseWriter, endpoint string, err error) {
	if errors.Is(err, query.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": err.Error()})
		return
	}
	s.log.Error().Err(err).Str("endpoint", endpoint).Msg("query failed")
	s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal error"})
}
