package handler

import (
	"errors"
	"net/http"

	"aqms-backend/internal/middleware"
	"aqms-backend/internal/model"
)

func actorFromRequest(r *http.Request) model.AuditActor {
	actor := model.AuditActor{IP: middleware.ClientIP(r)}

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return actor
	}

	actor.UserID = claims.SubjectID
	actor.Role = claims.Role
	return actor
}

func auditOutcome(err error) (string, string) {
	switch {
	case err == nil:
		return model.AuditSuccess, ""
	case errors.Is(err, model.ErrInvalidCredentials):
		return model.AuditFailure, "invalid_credentials"
	case errors.Is(err, model.ErrDuplicateEmail):
		return model.AuditFailure, "duplicate_email"
	case errors.Is(err, model.ErrPasswordTooLong):
		return model.AuditFailure, "password_too_long"
	case errors.Is(err, model.ErrForbidden):
		return model.AuditFailure, "forbidden"
	case errors.Is(err, model.ErrInvalidInput):
		return model.AuditFailure, "invalid_input"
	default:
		return model.AuditFailure, "internal_error"
	}
}

func auditEntry(r *http.Request, action model.AuditAction, subject string, err error) model.AuditEntry {
	status, reason := auditOutcome(err)
	return model.AuditEntry{
		Action:  action,
		Status:  status,
		Subject: model.NormalizeEmail(subject),
		Reason:  reason,
		Actor:   actorFromRequest(r),
	}
}
