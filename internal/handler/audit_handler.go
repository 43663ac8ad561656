package handler

import (
	"net/http"

	"aqms-backend/internal/model"
	"aqms-backend/internal/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	query := r.URL.Query()
	items, applied, err := h.service.Query(r.Context(), service.AuditFilter{
		Action:  query.Get("action"),
		Status:  query.Get("status"),
		ActorID: query.Get("actor_id"),
		Subject: query.Get("subject"),
		From:    query.Get("from"),
		To:      query.Get("to"),
		Limit:   limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AuditList{Items: items}, &model.Meta{Limit: applied, Count: len(items)})
}
