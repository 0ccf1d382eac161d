package api

import (
	"net/http"

	"github.com/conductor-io/conductor/internal/dataset"
)

// listDatasetsResponse wraps a dataset listing with its count.
type listDatasetsResponse struct {
	Datasets []*dataset.Dataset `json:"datasets"`
	Count    int                `json:"count"`
}

// handleGetDataset returns a dataset record. mode=edit returns the editable
// draft, creating one from the live copy when only a live record exists; the
// default returns the live record.
//
// GET /api/v2/datasets/{id}?mode=edit
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var (
		d   *dataset.Dataset
		err error
	)

	if r.URL.Query().Get("mode") == "edit" {
		d, err = s.datasets.GetDraft(r.Context(), id)
	} else {
		d, err = s.datasets.GetLive(r.Context(), id)
	}

	if err != nil {
		s.writeDatasetError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, d)
}

// handleListDatasets lists datasets, the live record preferred when a dataset
// has both copies. Repeated status parameters filter the listing.
//
// GET /api/v2/datasets?status=Live&status=Draft
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	var statuses []dataset.Status

	for _, raw := range r.URL.Query()["status"] {
		status := dataset.Status(raw)
		if !status.IsValid() {
			WriteErrorResponse(w, r, s.logger, BadRequest("unknown status filter: "+raw))

			return
		}

		statuses = append(statuses, status)
	}

	datasets, err := s.datasets.List(r.Context(), statuses)
	if err != nil {
		s.writeDatasetError(w, r, err)

		return
	}

	if datasets == nil {
		datasets = []*dataset.Dataset{}
	}

	s.writeJSON(w, r, http.StatusOK, listDatasetsResponse{
		Datasets: datasets,
		Count:    len(datasets),
	})
}

// handleListTransformations returns the draft transformations of a dataset.
//
// GET /api/v2/datasets/{id}/transformations
func (s *Server) handleListTransformations(w http.ResponseWriter, r *http.Request) {
	tfs, err := s.datasets.ListTransformations(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDatasetError(w, r, err)

		return
	}

	if tfs == nil {
		tfs = []dataset.TransformationConfig{}
	}

	s.writeJSON(w, r, http.StatusOK, tfs)
}
