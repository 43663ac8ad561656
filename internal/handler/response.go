package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"aqms-backend/internal/model"
	"aqms-backend/pkg/apierror"
)

const maxJSONBodyBytes = 1 << 20

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// writeError is the only place domain errors become HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	} else if errors.Is(err, model.ErrPasswordTooLong) {
		status = http.StatusBadRequest
		body.Code = "PASSWORD_TOO_LONG"
		body.Message = "Password must be at most 72 bytes"
		body.Details = "password"
	} else if errors.Is(err, model.ErrDuplicateEmail) {
		status = http.StatusConflict
		body.Code = "EMAIL_EXISTS"
		body.Message = "Email already registered"
	} else if errors.Is(err, model.ErrInvalidCredentials) {
		status = http.StatusUnauthorized
		body.Code = "INVALID_CREDENTIALS"
		body.Message = "Incorrect email or password"
	} else if errors.Is(err, model.ErrUnauthenticated) {
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Could not validate credentials"
	} else if errors.Is(err, model.ErrForbidden) {
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "Insufficient permissions"
	} else if errors.Is(err, model.ErrUserNotFound) {
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "User not found"
	} else if errors.Is(err, model.ErrNoReadings) {
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "No readings recorded"
	} else if errors.Is(err, model.ErrInvalidReading) {
		status = http.StatusBadRequest
		body.Code = "INVALID_READING"
		body.Message = err.Error()
	} else if errors.Is(err, model.ErrInvalidInput) {
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
	} else if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
		body.Code = "TIMEOUT"
		body.Message = "Storage did not respond in time"
		slog.Warn("request hit a storage timeout", "error", err.Error())
	} else {
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

// decodeJSON reads a single JSON object, rejecting unknown fields and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apierror.New("PAYLOAD_TOO_LARGE", "request body too large", "", http.StatusRequestEntityTooLarge)
		}
		return apierror.BadRequest("invalid JSON body", err.Error())
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apierror.BadRequest("invalid JSON body", "body must contain a single JSON object")
	}
	return nil
}
