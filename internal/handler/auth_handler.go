package handler

import (
	"mime"
	"net/http"

	"aqms-backend/internal/middleware"
	"aqms-backend/internal/model"
	"aqms-backend/internal/service"
	"aqms-backend/pkg/apierror"
)

type AuthHandler struct {
	service *service.AuthService
	audit   *service.AuditService
}

// NewAuthHandler records every outcome to audit when it is non-nil.
func NewAuthHandler(service *service.AuthService, audit *service.AuditService) *AuthHandler {
	return &AuthHandler{service: service, audit: audit}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RegisterRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), payload)
	h.audit.Record(r.Context(), auditEntry(r, model.AuditRegister, payload.Email, err))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user, nil)
}

// Login accepts JSON or an OAuth2-style password form (username=&password=).
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if isFormRequest(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, apierror.BadRequest("invalid form body", ""))
			return
		}
		payload.Username = r.PostForm.Get("username")
		payload.Password = r.PostForm.Get("password")
	} else if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	token, err := h.service.Login(r.Context(), payload.Identifier(), payload.Password)
	entry := auditEntry(r, model.AuditLogin, payload.Identifier(), err)
	if err == nil {
		entry.Actor.UserID = token.User.ID
		entry.Actor.Role = token.User.Role
	}
	h.audit.Record(r.Context(), entry)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, token, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthenticated)
		return
	}

	writeSuccess(w, http.StatusOK, model.NewPublicUser(user), nil)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthenticated)
		return
	}

	var payload model.ChangePasswordRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	err := h.service.ChangePassword(r.Context(), user.ID, payload.OldPassword, payload.NewPassword)
	h.audit.Record(r.Context(), auditEntry(r, model.AuditChangePassword, user.Email, err))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.MessageResponse{Message: "Password updated successfully"}, nil)
}

func isFormRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}
