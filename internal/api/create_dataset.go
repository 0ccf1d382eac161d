package api

import (
	"net/http"

	"github.com/conductor-io/conductor/internal/dataset"
	"github.com/conductor-io/conductor/internal/service"
)

// createDatasetRequest is the create payload: the dataset definition plus its
// initial transformations.
type createDatasetRequest struct {
	dataset.Dataset

	Transformations []dataset.TransformationConfig `json:"transformations,omitempty"`
}

// handleCreateDataset creates a new draft dataset.
//
// POST /api/v2/datasets
func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var req createDatasetRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	created, err := s.datasets.Create(r.Context(), &service.CreateRequest{
		Dataset:         &req.Dataset,
		Transformations: req.Transformations,
	})
	if err != nil {
		s.writeDatasetError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusCreated, created)
}
