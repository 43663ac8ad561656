package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"aqms-backend/internal/model"
	"aqms-backend/pkg/apierror"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
	auditWriteTimeout = 2 * time.Second
)

type AuditStore interface {
	Append(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, error)
}

// AuditService keeps the trail of authentication events. A nil *AuditService
// records nothing, so callers need not check whether auditing is configured.
type AuditService struct {
	store AuditStore
	now   func() time.Time
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store, now: time.Now}
}

// Record never fails the caller; a write error is logged and dropped.
func (s *AuditService) Record(ctx context.Context, entry model.AuditEntry) {
	if s == nil {
		return
	}

	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = s.now().UTC()
	}

	// Detached so an aborted request still leaves its trace.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := s.store.Append(ctx, entry); err != nil {
		slog.Error("failed to record audit entry", "action", entry.Action, "status", entry.Status, "error", err)
	}
}

// AuditFilter carries the raw query-string values for Query.
type AuditFilter struct {
	Action  string
	Status  string
	ActorID string
	Subject string
	From    string
	To      string
	Limit   int
}

func (s *AuditService) Query(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, int, error) {
	query := model.AuditQuery{
		Action:  model.AuditAction(strings.ToLower(strings.TrimSpace(filter.Action))),
		Status:  strings.ToLower(strings.TrimSpace(filter.Status)),
		ActorID: strings.TrimSpace(filter.ActorID),
		Subject: model.NormalizeEmail(filter.Subject),
		Limit:   filter.Limit,
	}

	if query.Limit <= 0 {
		query.Limit = defaultAuditLimit
	}
	if query.Limit > maxAuditLimit {
		query.Limit = maxAuditLimit
	}

	var err error
	if query.From, err = parseOptionalAuditTime(filter.From); err != nil {
		return nil, 0, apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "invalid 'from' datetime format", filter.From, http.StatusBadRequest)
	}
	if query.To, err = parseOptionalAuditTime(filter.To); err != nil {
		return nil, 0, apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "invalid 'to' datetime format", filter.To, http.StatusBadRequest)
	}

	entries, err := s.store.Query(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	return entries, query.Limit, nil
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	value, err := time.Parse(time.RFC3339Nano, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	return value.UTC(), nil
}
