package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

// APIHandler exposes invitations, battle reads and the consistency ledger over JSON.
type APIHandler struct {
	invitations *app.InvitationService
	battles     *app.BattleService
	engine      *app.ConsistencyEngine
	location    *time.Location
}

func NewAPIHandler(invitations *app.InvitationService, battles *app.BattleService, engine *app.ConsistencyEngine, location *time.Location) *APIHandler {
	if location == nil {
		location = time.UTC
	}
	return &APIHandler{invitations: invitations, battles: battles, engine: engine, location: location}
}

// Register mounts the API routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /invitations", h.createInvitation)
	mux.HandleFunc("GET /invitations/{id}", h.getInvitation)
	mux.HandleFunc("POST /invitations/{id}/respond", h.respondInvitation)
	mux.HandleFunc("GET /battles/{id}", h.getBattle)
	mux.HandleFunc("POST /activities", h.recordActivity)
	mux.HandleFunc("GET /users/{id}/profile", h.getProfile)
	mux.HandleFunc("GET /users/{id}/heatmap", h.getHeatmap)
}

type createInvitationRequest struct {
	ChallengerID string   `json:"challengerId"`
	ChallengedID string   `json:"challengedId"`
	Topics       []string `json:"topics"`
}

type respondRequest struct {
	UserID string `json:"userId"`
	Accept bool   `json:"accept"`
}

type respondResponse struct {
	Invitation domain.Invitation `json:"invitation"`
	Error      *errorPayload     `json:"error,omitempty"`
}

func (h *APIHandler) createInvitation(w http.ResponseWriter, r *http.Request) {
	var req createInvitationRequest
	if !decode(w, r, &req) {
		return
	}
	inv, err := h.invitations.Create(r.Context(), req.ChallengerID, req.ChallengedID, req.Topics)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *APIHandler) getInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invitations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// respondInvitation returns the invitation even when acceptance was refused, so the
// client sees the rejected state alongside the reason.
func (h *APIHandler) respondInvitation(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if !decode(w, r, &req) {
		return
	}
	inv, err := h.invitations.Respond(r.Context(), r.PathValue("id"), req.UserID, req.Accept)
	if err != nil {
		if inv.ID == "" {
			writeError(w, err)
			return
		}
		body := errorBody(err)
		_, status := classify(err)
		writeJSON(w, status, respondResponse{Invitation: inv, Error: &body})
		return
	}
	writeJSON(w, http.StatusOK, respondResponse{Invitation: inv})
}

func (h *APIHandler) getBattle(w http.ResponseWriter, r *http.Request) {
	s, err := h.battles.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *APIHandler) recordActivity(w http.ResponseWriter, r *http.Request) {
	var in domain.ActivityInput
	if !decode(w, r, &in) {
		return
	}
	rec, err := h.engine.RecordActivity(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *APIHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *APIHandler) getHeatmap(w http.ResponseWriter, r *http.Request) {
	from, err := time.ParseInLocation(domain.DateLayout, r.URL.Query().Get("from"), h.location)
	if err != nil {
		writeError(w, domain.ErrInvalidRange)
		return
	}
	to, err := time.ParseInLocation(domain.DateLayout, r.URL.Query().Get("to"), h.location)
	if err != nil {
		writeError(w, domain.ErrInvalidRange)
		return
	}
	heatmap, err := h.engine.GenerateHeatmap(r.Context(), r.PathValue("id"), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, heatmap)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: err.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	code, status := classify(err)
	if status >= http.StatusInternalServerError {
		logrus.Errorf("[api] %v", err)
	}
	writeJSON(w, status, errorPayload{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Debugf("[api] write response: %v", err)
	}
}
