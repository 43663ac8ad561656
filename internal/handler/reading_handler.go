package handler

import (
	"net/http"

	"aqms-backend/internal/model"
	"aqms-backend/internal/service"
	"aqms-backend/pkg/apierror"
)

type ReadingHandler struct {
	service *service.ReadingService
}

func NewReadingHandler(service *service.ReadingService) *ReadingHandler {
	return &ReadingHandler{service: service}
}

// Create ingests one upload from the sensor node.
func (h *ReadingHandler) Create(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.ReadingInput
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	reading, err := h.service.Ingest(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, reading, nil)
}

func (h *ReadingHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	if limit < 0 {
		writeError(w, apierror.BadRequest("limit must not be negative", "limit"))
		return
	}

	readings, err := h.service.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, readings, &model.Meta{Limit: limit, Count: len(readings)})
}
