package database

import (
	"context"
	"errors"
	"serwer-licencji/internal/models"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type CreateAllocationParams struct {
	AllocationID string
	SoftwareID   string
	UserID       int64
	ExpiryDate   *time.Time
}

func (q *Queries) CreateAllocation(ctx context.Context, arg CreateAllocationParams) (*models.Allocation, error) {
	query := `
		INSERT INTO license_allocations (allocation_id, software_id, user_id, allocation_date, expiry_date, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING allocation_id, software_id, user_id, allocation_date, expiry_date, is_active
	`
	row := q.db.QueryRow(ctx, query, arg.AllocationID, arg.SoftwareID, arg.UserID, time.Now(), arg.ExpiryDate)

	var alloc models.Allocation
	err := row.Scan(
		&alloc.AllocationID,
		&alloc.SoftwareID,
		&alloc.UserID,
		&alloc.AllocationDate,
		&alloc.ExpiryDate,
		&alloc.IsActive,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrSoftwareNotFound
		}
		return nil, err
	}

	return &alloc, nil
}

// GetActiveAllocation returns the entitlement authorizing a checkout, or nil
// when the user has none that is active and unexpired.
func (q *Queries) GetActiveAllocation(ctx context.Context, softwareID string, userID int64) (*models.Allocation, error) {
	query := `
		SELECT allocation_id, software_id, user_id, allocation_date, expiry_date, is_active
		FROM license_allocations
		WHERE software_id = $1 AND user_id = $2 AND is_active = TRUE
		AND (expiry_date IS NULL OR expiry_date > NOW())
		ORDER BY allocation_date DESC
		LIMIT 1
	`
	var alloc models.Allocation
	err := q.db.QueryRow(ctx, query, softwareID, userID).Scan(
		&alloc.AllocationID,
		&alloc.SoftwareID,
		&alloc.UserID,
		&alloc.AllocationDate,
		&alloc.ExpiryDate,
		&alloc.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &alloc, nil
}

func (q *Queries) DeactivateAllocation(ctx context.Context, allocationID string) (bool, error) {
	query := `UPDATE license_allocations SET is_active = FALSE WHERE allocation_id = $1 AND is_active = TRUE`
	res, err := q.db.Exec(ctx, query, allocationID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (q *Queries) ListAllocationsForSoftware(ctx context.Context, softwareID string) ([]models.Allocation, error) {
	query := `
		SELECT allocation_id, software_id, user_id, allocation_date, expiry_date, is_active
		FROM license_allocations
		WHERE software_id = $1
		ORDER BY allocation_date DESC
	`
	rows, err := q.db.Query(ctx, query, softwareID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []models.Allocation
	for rows.Next() {
		var alloc models.Allocation
		err := rows.Scan(
			&alloc.AllocationID,
			&alloc.SoftwareID,
			&alloc.UserID,
			&alloc.AllocationDate,
			&alloc.ExpiryDate,
			&alloc.IsActive,
		)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, alloc)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if allocations == nil {
		return []models.Allocation{}, nil
	}

	return allocations, nil
}
