package api

import (
	"net/http"

	"github.com/conductor-io/conductor/internal/service"
)

// handleUpdateDataset applies a partial edit to a draft dataset. The dataset
// id comes from the path; a body dataset_id, when present, must match it.
//
// PATCH /api/v2/datasets/{id}
func (s *Server) handleUpdateDataset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req service.UpdateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	if req.DatasetID != "" && req.DatasetID != id {
		WriteErrorResponse(w, r, s.logger,
			BadRequest("dataset_id in body does not match the request path"))

		return
	}

	req.DatasetID = id

	updated, err := s.datasets.Update(r.Context(), &req)
	if err != nil {
		s.writeDatasetError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, updated)
}
