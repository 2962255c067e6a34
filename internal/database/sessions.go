package database

import (
	"context"
	"errors"
	"serwer-licencji/internal/models"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrSessionExists = errors.New("you already have an active license for this software")

type CreateSessionParams struct {
	SessionID      uuid.UUID
	AllocationID   string
	ClientHostname string
	ClientAddress  string
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (*models.Session, error) {
	query := `
		INSERT INTO license_sessions
			(session_id, allocation_id, checkout_time, client_hostname, client_address, last_heartbeat, session_status)
		VALUES ($1, $2, $3, $4, $5, $3, 'active')
		RETURNING session_id, allocation_id, checkout_time, checkin_time,
			client_hostname, client_address, last_heartbeat, session_status
	`
	now := time.Now()
	row := q.db.QueryRow(ctx, query, arg.SessionID, arg.AllocationID, now, arg.ClientHostname, arg.ClientAddress)

	var session models.Session
	err := row.Scan(
		&session.SessionID,
		&session.AllocationID,
		&session.CheckoutTime,
		&session.CheckinTime,
		&session.ClientHostname,
		&session.ClientAddress,
		&session.LastHeartbeat,
		&session.Status,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrSessionExists
		}
		return nil, err
	}

	return &session, nil
}

func (q *Queries) GetSessionByID(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	query := `
		SELECT session_id, allocation_id, checkout_time, checkin_time,
			client_hostname, client_address, last_heartbeat, session_status
		FROM license_sessions
		WHERE session_id = $1
	`
	var session models.Session
	err := q.db.QueryRow(ctx, query, sessionID).Scan(
		&session.SessionID,
		&session.AllocationID,
		&session.CheckoutTime,
		&session.CheckinTime,
		&session.ClientHostname,
		&session.ClientAddress,
		&session.LastHeartbeat,
		&session.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (q *Queries) GetActiveSessionForUser(ctx context.Context, softwareID string, userID int64) (*models.Session, error) {
	query := `
		SELECT ls.session_id, ls.allocation_id, ls.checkout_time, ls.checkin_time,
			ls.client_hostname, ls.client_address, ls.last_heartbeat, ls.session_status
		FROM license_sessions ls
		JOIN license_allocations la ON ls.allocation_id = la.allocation_id
		WHERE la.software_id = $1 AND la.user_id = $2 AND ls.session_status = 'active'
	`
	var session models.Session
	err := q.db.QueryRow(ctx, query, softwareID, userID).Scan(
		&session.SessionID,
		&session.AllocationID,
		&session.CheckoutTime,
		&session.CheckinTime,
		&session.ClientHostname,
		&session.ClientAddress,
		&session.LastHeartbeat,
		&session.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// CloseSession transitions an active session to closed. The conditional
// WHERE clause is what makes a repeated checkin fail instead of silently
// succeeding, and what resolves a checkin racing a heartbeat.
func (q *Queries) CloseSession(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	query := `
		UPDATE license_sessions
		SET checkin_time = $2, session_status = 'closed'
		WHERE session_id = $1 AND session_status = 'active'
	`
	res, err := q.db.Exec(ctx, query, sessionID, time.Now())
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (q *Queries) ExpireSession(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	query := `
		UPDATE license_sessions
		SET checkin_time = $2, session_status = 'expired'
		WHERE session_id = $1 AND session_status = 'active'
	`
	res, err := q.db.Exec(ctx, query, sessionID, time.Now())
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (q *Queries) TouchSessionHeartbeat(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	query := `
		UPDATE license_sessions
		SET last_heartbeat = $2
		WHERE session_id = $1 AND session_status = 'active'
	`
	res, err := q.db.Exec(ctx, query, sessionID, time.Now())
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

type ActiveSession struct {
	models.Session
	SoftwareID string `json:"software_id"`
	UserID     int64  `json:"user_id"`
}

// GetActiveSessionInfo resolves an active session together with the
// software and user behind its allocation. Returns nil when the session is
// unknown or no longer active.
func (q *Queries) GetActiveSessionInfo(ctx context.Context, sessionID uuid.UUID) (*ActiveSession, error) {
	query := `
		SELECT ls.session_id, ls.allocation_id, ls.checkout_time, ls.checkin_time,
			ls.client_hostname, ls.client_address, ls.last_heartbeat, ls.session_status,
			la.software_id, la.user_id
		FROM license_sessions ls
		JOIN license_allocations la ON ls.allocation_id = la.allocation_id
		WHERE ls.session_id = $1 AND ls.session_status = 'active'
	`
	var s ActiveSession
	err := q.db.QueryRow(ctx, query, sessionID).Scan(
		&s.SessionID,
		&s.AllocationID,
		&s.CheckoutTime,
		&s.CheckinTime,
		&s.ClientHostname,
		&s.ClientAddress,
		&s.LastHeartbeat,
		&s.Status,
		&s.SoftwareID,
		&s.UserID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (q *Queries) ListActiveSessions(ctx context.Context) ([]ActiveSession, error) {
	query := `
		SELECT ls.session_id, ls.allocation_id, ls.checkout_time, ls.checkin_time,
			ls.client_hostname, ls.client_address, ls.last_heartbeat, ls.session_status,
			la.software_id, la.user_id
		FROM license_sessions ls
		JOIN license_allocations la ON ls.allocation_id = la.allocation_id
		WHERE ls.session_status = 'active'
		ORDER BY ls.checkout_time
	`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []ActiveSession
	for rows.Next() {
		var s ActiveSession
		err := rows.Scan(
			&s.SessionID,
			&s.AllocationID,
			&s.CheckoutTime,
			&s.CheckinTime,
			&s.ClientHostname,
			&s.ClientAddress,
			&s.LastHeartbeat,
			&s.Status,
			&s.SoftwareID,
			&s.UserID,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if sessions == nil {
		return []ActiveSession{}, nil
	}

	return sessions, nil
}

func (q *Queries) ListSessionsForSoftware(ctx context.Context, softwareID string, status string, limit int, offset int) ([]ActiveSession, error) {
	query := `
		SELECT ls.session_id, ls.allocation_id, ls.checkout_time, ls.checkin_time,
			ls.client_hostname, ls.client_address, ls.last_heartbeat, ls.session_status,
			la.software_id, la.user_id
		FROM license_sessions ls
		JOIN license_allocations la ON ls.allocation_id = la.allocation_id
		WHERE la.software_id = $1 AND ($2 = '' OR ls.session_status = $2)
		ORDER BY ls.checkout_time DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := q.db.Query(ctx, query, softwareID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []ActiveSession
	for rows.Next() {
		var s ActiveSession
		err := rows.Scan(
			&s.SessionID,
			&s.AllocationID,
			&s.CheckoutTime,
			&s.CheckinTime,
			&s.ClientHostname,
			&s.ClientAddress,
			&s.LastHeartbeat,
			&s.Status,
			&s.SoftwareID,
			&s.UserID,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if sessions == nil {
		return []ActiveSession{}, nil
	}

	return sessions, nil
}
