package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/aidly/aidly-api/internal/models"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
)

// RecipientRepository resolves notification addressees from the user and client tables.
type RecipientRepository struct {
	db *sqlx.DB
}

// NewRecipientRepository constructs the repository.
func NewRecipientRepository(db *sqlx.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

type recipientRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Email        sql.NullString `db:"email"`
	DepartmentID sql.NullString `db:"department_id"`
}

// Find loads the contact details of a user or client.
func (r *RecipientRepository) Find(ctx context.Context, id string, kind models.NotifiableType) (*models.Recipient, error) {
	var query string
	switch kind {
	case models.NotifiableUser:
		query = `SELECT id, name, email, department_id FROM users WHERE id = $1`
	case models.NotifiableClient:
		query = `SELECT id, name, email, NULL::text AS department_id FROM clients WHERE id = $1`
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown notifiable type")
	}
	var row recipientRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "recipient not found")
		}
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	recipient := &models.Recipient{ID: row.ID, Type: kind, Name: row.Name, Email: row.Email.String}
	if row.DepartmentID.Valid {
		dept := row.DepartmentID.String
		recipient.DepartmentID = &dept
	}
	return recipient, nil
}

// ActiveAgents returns active agent and admin users, used for broadcast events.
func (r *RecipientRepository) ActiveAgents(ctx context.Context) ([]models.Recipient, error) {
	const query = `SELECT id, name, email, department_id FROM users
WHERE is_active = TRUE AND role IN ('agent', 'admin') ORDER BY id`
	var rows []recipientRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list active agents: %w", err)
	}
	out := make([]models.Recipient, 0, len(rows))
	for _, row := range rows {
		rec := models.Recipient{ID: row.ID, Type: models.NotifiableUser, Name: row.Name, Email: row.Email.String}
		if row.DepartmentID.Valid {
			dept := row.DepartmentID.String
			rec.DepartmentID = &dept
		}
		out = append(out, rec)
	}
	return out, nil
}
