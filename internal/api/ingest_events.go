package api

import (
	"encoding/json"
	"net/http"
)

type (
	// ingestRequest is the event-ingestion payload. A batch carries events;
	// a single event may be sent under event instead.
	ingestRequest struct {
		Data ingestData `json:"data"`
	}

	ingestData struct {
		Events []json.RawMessage `json:"events,omitempty"`
		Event  json.RawMessage   `json:"event,omitempty"`
	}

	// ingestResponse acknowledges an accepted batch.
	ingestResponse struct {
		DatasetID string `json:"dataset_id"`
		Accepted  int    `json:"accepted"`
	}
)

// handleIngestEvents accepts a batch of events for a live dataset and hands
// it to the streaming publisher.
//
// POST /api/v2/data/in/{id}
func (s *Server) handleIngestEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req ingestRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	events := req.Data.Events
	if len(events) == 0 && len(req.Data.Event) > 0 {
		events = []json.RawMessage{req.Data.Event}
	}

	if err := s.datasets.IngestEvents(r.Context(), id, events); err != nil {
		s.writeDatasetError(w, r, err)

		return
	}

	s.writeJSON(w, r, http.StatusOK, ingestResponse{
		DatasetID: id,
		Accepted:  len(events),
	})
}
