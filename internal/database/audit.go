package database

import (
	"context"
	"serwer-licencji/internal/models"

	"github.com/google/uuid"
)

type AuditEventParams struct {
	SoftwareID    *string
	UserID        *int64
	Action        string
	ClientAddress *string
	SessionID     *uuid.UUID
	Detail        *string
}

func (q *Queries) InsertAuditEvent(ctx context.Context, arg AuditEventParams) error {
	query := `
		INSERT INTO license_audit_log (software_id, user_id, action, client_address, session_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := q.db.Exec(ctx, query,
		arg.SoftwareID,
		arg.UserID,
		arg.Action,
		arg.ClientAddress,
		arg.SessionID,
		arg.Detail,
	)
	return err
}

func (q *Queries) ListAuditEvents(ctx context.Context, sinceID int64, limit int) ([]models.AuditEvent, error) {
	query := `
		SELECT id, software_id, user_id, action, event_time, client_address, session_id, detail
		FROM license_audit_log
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`
	rows, err := q.db.Query(ctx, query, sinceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var event models.AuditEvent
		err := rows.Scan(
			&event.ID,
			&event.SoftwareID,
			&event.UserID,
			&event.Action,
			&event.EventTime,
			&event.ClientAddress,
			&event.SessionID,
			&event.Detail,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if events == nil {
		return []models.AuditEvent{}, nil
	}

	return events, nil
}
