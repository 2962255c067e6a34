package database

import (
	"context"
	"errors"
	"serwer-licencji/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNoAllocation     = errors.New("you need to register for a license in the application first")
	ErrNoSeatsAvailable = errors.New("no licenses available")
)

type CheckoutParams struct {
	SoftwareID     string
	UserID         int64
	ClientHostname string
	ClientAddress  string
}

type CheckoutResult struct {
	Session    *models.Session
	Allocation *models.Allocation
	Software   *models.Software
}

// CheckoutLicense runs the whole checkout critical section in one
// transaction. The locking read on the software row serializes concurrent
// checkouts for the same software, so two callers cannot both observe a
// free seat and then both insert.
func (s *Store) CheckoutLicense(ctx context.Context, arg CheckoutParams) (*CheckoutResult, error) {
	var result CheckoutResult

	err := s.ExecTx(ctx, func(q *Queries) error {
		query := `
			SELECT software_id, software_name, version, max_seats
			FROM software
			WHERE software_id = $1
			FOR UPDATE
		`
		var sw models.Software
		err := q.db.QueryRow(ctx, query, arg.SoftwareID).Scan(
			&sw.SoftwareID,
			&sw.Name,
			&sw.Version,
			&sw.MaxSeats,
		)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSoftwareNotFound
			}
			return err
		}
		result.Software = &sw

		existing, err := q.GetActiveSessionForUser(ctx, arg.SoftwareID, arg.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrSessionExists
		}

		allocation, err := q.GetActiveAllocation(ctx, arg.SoftwareID, arg.UserID)
		if err != nil {
			return err
		}
		if allocation == nil {
			return ErrNoAllocation
		}
		result.Allocation = allocation

		// Capacity applies to every caller, a valid allocation does not
		// bypass the seat cap.
		active, err := q.CountActiveSessions(ctx, arg.SoftwareID)
		if err != nil {
			return err
		}
		if active >= sw.MaxSeats {
			return ErrNoSeatsAvailable
		}

		session, err := q.CreateSession(ctx, CreateSessionParams{
			SessionID:      uuid.New(),
			AllocationID:   allocation.AllocationID,
			ClientHostname: arg.ClientHostname,
			ClientAddress:  arg.ClientAddress,
		})
		if err != nil {
			return err
		}
		result.Session = session

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}
