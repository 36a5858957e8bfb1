package postgres

import (
	"context"
	"encoding/json"
	"log"
	"time"

	authcore "github.com/MrEthical07/authcore"
)

var _ authcore.AuditSink = (*AuditSink)(nil)

// AuditSink writes audit events to audit_logs. A failed insert is logged and
// dropped; it never reaches the request that produced the event.
type AuditSink struct {
	conn
}

func (s *AuditSink) Emit(ctx context.Context, event authcore.AuditEvent) {
	if err := s.insert(ctx, event); err != nil {
		log.Printf("authcore: audit insert %s failed: %v", event.EventType, err)
	}
}

func (s *AuditSink) insert(ctx context.Context, event authcore.AuditEvent) error {
	details := []byte("{}")
	if len(event.Metadata) > 0 {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
		details = b
	}
	at := event.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`insert into audit_logs (created_at, user_id, session_id, event_type, event_action, ip_address,
			user_agent, status, error, details)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		at, nullString(event.UserID), nullString(event.SessionID), event.EventType, event.Action,
		event.IP, event.UserAgent, event.Status, event.Error, details)
	return err
}
