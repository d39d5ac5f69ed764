package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/podium/internal/domain/types"
)

// ParticipantInput is the body of POST /participants. Time uses the race
// time form ("2345" is 23.45s).
type ParticipantInput struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Company string `json:"company"`
	Time    string `json:"time"`
}

type scoreRequest struct {
	Time string `json:"time"`
}

// SubmitResult is the answer to a new attempt.
type SubmitResult struct {
	Participant types.Profile `json:"participant"`
	Improved    bool          `json:"improved"`
}

// ParticipantsHandler handles roster writes and participant lookups.
type ParticipantsHandler struct {
	deps Roster
}

// NewParticipantsHandler creates a new participants handler.
func NewParticipantsHandler(deps Roster) *ParticipantsHandler {
	return &ParticipantsHandler{deps: deps}
}

// HandleAdd handles POST /participants.
func (h *ParticipantsHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_participant"
	var in ParticipantInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	in.Time = strings.TrimSpace(in.Time)
	in.Phone = strings.TrimSpace(in.Phone)

	profile, err := h.deps.AddParticipant(r.Context(), in)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

// HandleSubmitTime handles POST /participants/{id}/score.
func (h *ParticipantsHandler) HandleSubmitTime(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_time"
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.SubmitTime(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Time))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGet handles GET /participants/{id}.
func (h *ParticipantsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_participant"
	profile, err := h.deps.Participant(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleDelete handles DELETE /participants/{id}.
func (h *ParticipantsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_participant"
	if err := h.deps.RemoveParticipant(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
