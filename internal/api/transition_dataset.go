package api

import (
	"net/http"

	"github.com/conductor-io/conductor/internal/dataset"
)

// transitionRequest names the requested lifecycle transition.
type transitionRequest struct {
	Transition dataset.Transition `json:"transition"`
}

// transitionResponse acknowledges an executed transition.
type transitionResponse struct {
	DatasetID  string             `json:"dataset_id"`
	Transition dataset.Transition `json:"transition"`
	Status     string             `json:"status"`
}

// handleTransitionDataset executes a lifecycle transition on a dataset.
//
// POST /api/v2/datasets/{id}/transition
func (s *Server) handleTransitionDataset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req transitionRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	if err := s.datasets.Transition(r.Context(), id, req.Transition); err != nil {
		s.writeDatasetError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, transitionResponse{
		DatasetID:  id,
		Transition: req.Transition,
		Status:     "completed",
	})
}
