package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/regassist/backend/internal/model"
)

// PredicateRepository provides read access to the predicate device catalog.
type PredicateRepository struct {
	db *sql.DB
}

// NewPredicateRepository creates a new PredicateRepository.
func NewPredicateRepository(db *sql.DB) *PredicateRepository {
	return &PredicateRepository{db: db}
}

// Upsert inserts or replaces a predicate device record. Used by catalog seeding.
func (r *PredicateRepository) Upsert(ctx context.Context, device *model.PredicateDevice) error {
	query := `
		INSERT OR REPLACE INTO predicate_devices (k_number, device_name, applicant, product_code, clearance_date, summary)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		device.KNumber,
		device.DeviceName,
		device.Applicant,
		device.ProductCode,
		device.ClearanceDate,
		device.Summary,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert predicate device: %w", err)
	}

	return nil
}

// Count returns the number of catalog records.
func (r *PredicateRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predicate_devices`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count predicate devices: %w", err)
	}
	return count, nil
}

// Search finds predicate devices whose name, summary or product code match
// any of the terms in the query, ranked by clearance date (newest first).
func (r *PredicateRepository) Search(ctx context.Context, query string, limit int) ([]*model.PredicateDevice, error) {
	if limit <= 0 {
		limit = 5
	}

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, term := range terms {
		pattern := "%" + term + "%"
		conditions = append(conditions, "(LOWER(device_name) LIKE ? OR LOWER(summary) LIKE ? OR LOWER(product_code) = ?)")
		args = append(args, pattern, pattern, term)
	}
	args = append(args, limit)

	stmt := fmt.Sprintf(`
		SELECT k_number, device_name, applicant, product_code, clearance_date, summary
		FROM predicate_devices
		WHERE %s
		ORDER BY clearance_date DESC
		LIMIT ?
	`, strings.Join(conditions, " OR "))

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search predicate devices: %w", err)
	}
	defer rows.Close()

	var devices []*model.PredicateDevice
	for rows.Next() {
		device := &model.PredicateDevice{}
		var summary sql.NullString

		err := rows.Scan(
			&device.KNumber,
			&device.DeviceName,
			&device.Applicant,
			&device.ProductCode,
			&device.ClearanceDate,
			&summary,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan predicate device: %w", err)
		}

		if summary.Valid {
			device.Summary = summary.String
		}

		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predicate devices: %w", err)
	}

	return devices, nil
}
