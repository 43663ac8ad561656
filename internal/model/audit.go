package model

import "time"

type AuditAction string

const (
	AuditRegister       AuditAction = "register"
	AuditLogin          AuditAction = "login"
	AuditChangePassword AuditAction = "change_password"
	AuditBootstrapAdmin AuditAction = "bootstrap_admin"
)

const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

type AuditActor struct {
	UserID string `json:"user_id,omitempty"`
	Role   Role   `json:"role,omitempty"`
	IP     string `json:"ip,omitempty"`
}

// AuditEntry records one security-relevant event. Subject is the account acted
// on, normally an email; credentials never appear here.
type AuditEntry struct {
	ID         int64       `json:"id,omitempty"`
	Action     AuditAction `json:"action"`
	Status     string      `json:"status"`
	Subject    string      `json:"subject,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	Actor      AuditActor  `json:"actor"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// AuditQuery filters are ANDed; zero values match everything.
type AuditQuery struct {
	Action  AuditAction
	Status  string
	ActorID string
	Subject string
	From    time.Time
	To      time.Time
	Limit   int
}

func (q AuditQuery) Matches(e AuditEntry) bool {
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.Status != "" && e.Status != q.Status {
		return false
	}
	if q.ActorID != "" && e.Actor.UserID != q.ActorID {
		return false
	}
	if q.Subject != "" && e.Subject != q.Subject {
		return false
	}
	if !q.From.IsZero() && e.OccurredAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.OccurredAt.After(q.To) {
		return false
	}
	return true
}

type AuditList struct {
	Items []AuditEntry `json:"items"`
}
