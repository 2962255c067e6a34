package database

import (
	"context"
	"errors"
	"serwer-licencji/internal/models"

	"github.com/jackc/pgx/v5"
)

var ErrSoftwareNotFound = errors.New("software not found")

func (q *Queries) GetSoftwareByID(ctx context.Context, softwareID string) (*models.Software, error) {
	query := `
		SELECT software_id, software_name, version, max_seats
		FROM software
		WHERE software_id = $1
	`
	var sw models.Software
	err := q.db.QueryRow(ctx, query, softwareID).Scan(
		&sw.SoftwareID,
		&sw.Name,
		&sw.Version,
		&sw.MaxSeats,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sw, nil
}

func (q *Queries) ListSoftware(ctx context.Context) ([]models.Software, error) {
	query := `
		SELECT software_id, software_name, version, max_seats
		FROM software
		ORDER BY software_id
	`
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var software []models.Software
	for rows.Next() {
		var sw models.Software
		if err := rows.Scan(&sw.SoftwareID, &sw.Name, &sw.Version, &sw.MaxSeats); err != nil {
			return nil, err
		}
		software = append(software, sw)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if software == nil {
		return []models.Software{}, nil
	}

	return software, nil
}

func (q *Queries) CountActiveSessions(ctx context.Context, softwareID string) (int, error) {
	query := `
		SELECT COUNT(ls.session_id)
		FROM license_sessions ls
		JOIN license_allocations la ON ls.allocation_id = la.allocation_id
		WHERE la.software_id = $1 AND ls.session_status = 'active'
	`
	var count int
	err := q.db.QueryRow(ctx, query, softwareID).Scan(&count)
	return count, err
}

func (q *Queries) GetSoftwareUsage(ctx context.Context, softwareID string) (*models.SoftwareUsage, error) {
	query := `
		SELECT s.software_id, s.software_name, s.version, s.max_seats,
			COUNT(ls.session_id) FILTER (WHERE ls.session_status = 'active') AS active_sessions
		FROM software s
		LEFT JOIN license_allocations la ON s.software_id = la.software_id
		LEFT JOIN license_sessions ls ON la.allocation_id = ls.allocation_id
		WHERE s.software_id = $1
		GROUP BY s.software_id
	`
	var usage models.SoftwareUsage
	err := q.db.QueryRow(ctx, query, softwareID).Scan(
		&usage.SoftwareID,
		&usage.Name,
		&usage.Version,
		&usage.MaxSeats,
		&usage.ActiveSessions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	usage.Available = usage.MaxSeats - usage.ActiveSessions
	if usage.Available < 0 {
		usage.Available = 0
	}

	return &usage, nil
}
