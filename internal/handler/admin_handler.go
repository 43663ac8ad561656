package handler

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"aqms-backend/internal/middleware"
	"aqms-backend/internal/model"
	"aqms-backend/internal/service"
	"aqms-backend/pkg/apierror"
)

var csvHeader = []string{
	"ts", "datetime_utc", "pm1", "pm25", "pm10", "temp", "hum",
	"battery", "vin", "vout", "received_at",
}

type AdminHandler struct {
	auth     *service.AuthService
	readings *service.ReadingService
}

func NewAdminHandler(auth *service.AuthService, readings *service.ReadingService) *AdminHandler {
	return &AdminHandler{auth: auth, readings: readings}
}

func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	admin, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthenticated)
		return
	}

	userCount, err := h.auth.CountUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	readingCount, err := h.readings.Count(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	latest, err := h.readings.Latest(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AdminDashboard{
		Message:      "Welcome to the admin dashboard, " + admin.Username,
		Admin:        admin.Email,
		UserCount:    userCount,
		ReadingCount: readingCount,
		Latest:       latest,
	}, nil)
}

func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	users, err := h.auth.ListUsers(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.PublicUserList{Users: users}, &model.Meta{Limit: limit, Count: len(users)})
}

// ExportCSV streams the last ?days= days of readings (default 7) as an attachment.
func (h *AdminHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", service.DefaultExportDays)
	if err != nil {
		writeError(w, err)
		return
	}

	rows, err := h.readings.ExportSince(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}

	filename := fmt.Sprintf("aqms_data_%ddays_%s.csv", days, time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	if err := writeReadingsCSV(w, rows); err != nil {
		// Headers are already sent; all that is left is to log.
		slog.Error("csv export interrupted", "request_id", middleware.RequestIDFromContext(r.Context()), "error", err)
	}
}

func writeReadingsCSV(w http.ResponseWriter, rows []model.Reading) error {
	out := csv.NewWriter(w)
	if err := out.Write(csvHeader); err != nil {
		return err
	}

	for _, rd := range rows {
		record := []string{
			strconv.FormatInt(rd.TS, 10),
			time.Unix(rd.TS, 0).UTC().Format(time.RFC3339),
			formatFloat(rd.PM1),
			formatFloat(rd.PM25),
			formatFloat(rd.PM10),
			formatFloat(rd.Temp),
			formatFloat(rd.Hum),
			formatFloat(rd.Battery),
			formatFloat(rd.Vin),
			formatFloat(rd.Vout),
			rd.ReceivedAt.UTC().Format(time.RFC3339),
		}
		if err := out.Write(record); err != nil {
			return err
		}
	}

	out.Flush()
	return out.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierror.BadRequest(key+" must be an integer", key)
	}
	return value, nil
}
