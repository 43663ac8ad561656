package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"aqms-backend/internal/model"
)

// errorBody renders the failure envelope the handlers use, so middleware
// rejections look the same to clients as service errors.
func errorBody(code, message string) []byte {
	body, err := json.Marshal(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: code, Message: message},
	})
	if err != nil {
		return []byte(`{"success":false}`)
	}
	return append(body, '\n')
}

func writeJSONError(w http.ResponseWriter, status int, code string, message string) {
	body := errorBody(code, message)

	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
