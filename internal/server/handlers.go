package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/introweave/matchmaker/internal/config"
	"github.com/introweave/matchmaker/internal/db"
	svcErr "github.com/introweave/matchmaker/internal/errors"
)

// envelope is the uniform response shape: success/text for workflow
// outcomes, error for anticipated condition names, data for extras.
type envelope struct {
	Success bool           `json:"success"`
	Text    string         `json:"text,omitempty"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, svcErr.HTTPStatus(err), envelope{Success: false, Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid request payload"})
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleFindMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "userId is required"})
		return
	}

	res := s.discovery.FindMatch(r.Context(), req.UserID)
	out := envelope{Success: res.Success, Text: res.Text}
	if res.MatchID != "" {
		out.Data = map[string]any{
			"matchId":   res.MatchID,
			"score":     res.Score,
			"reasoning": res.Reasoning,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSendProposal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"userId"`
		MatchID string `json:"matchId"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.MatchID == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "userId and matchId are required"})
		return
	}

	res := s.proposals.SendProposal(r.Context(), req.UserID, req.MatchID, "user")
	writeJSON(w, http.StatusOK, envelope{Success: res.Success, Text: res.Text, Error: res.Error})
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"userId"`
		Message string `json:"message"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "userId is required"})
		return
	}

	res := s.proposals.Respond(r.Context(), req.UserID, req.Message)
	writeJSON(w, http.StatusOK, envelope{Success: res.Success, Text: res.Text, Error: res.Error})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	tier := s.statuses.GetStatus(r.Context(), userID)
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    map[string]any{"userId": userID, "status": string(tier)},
	})
}

func (s *Server) handleAdvanceStatus(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	var req struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}

	target := db.Tier(req.Status)
	if !target.Valid() {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "unknown status"})
		return
	}

	if !s.statuses.Transition(r.Context(), userID, target) {
		writeJSON(w, http.StatusOK, envelope{
			Success: false,
			Text:    "That status change isn't available from where you are.",
			Error:   "invalid_transition",
		})
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    map[string]any{"userId": userID, "status": req.Status},
	})
}

func (s *Server) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	ctx := r.Context()

	tier := s.statuses.GetStatus(ctx, userID)
	allowance, err := s.quotas.Allowance(ctx, userID, tier)
	if err != nil {
		writeErr(w, err)
		return
	}
	daily, err := s.quotas.DailyCount(ctx, userID)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"userId":    userID,
			"tier":      string(tier),
			"remaining": allowance.Remaining,
			"limit":     allowance.Limit,
			"daily":     allowance.Daily,
			"sentToday": daily,
		},
	})
}

func (s *Server) handleSetQuotaLimits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProvisionalTotalLimit int `json:"provisionalTotalLimit"`
		MemberDailyLimit      int `json:"memberDailyLimit"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ProvisionalTotalLimit <= 0 || req.MemberDailyLimit <= 0 {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "limits must be positive"})
		return
	}

	s.appCtx.Config.SetQuotaLimits(config.QuotaLimits{
		ProvisionalTotal: req.ProvisionalTotalLimit,
		MemberDaily:      req.MemberDailyLimit,
	})
	s.appCtx.Logger.Info("quota limits overridden",
		"provisionalTotal", req.ProvisionalTotalLimit,
		"memberDaily", req.MemberDailyLimit,
	)
	writeJSON(w, http.StatusOK, envelope{Success: true})
}
