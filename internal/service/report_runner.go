package service

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/pkg/database"
	appErrors "github.com/aidly/aidly-api/pkg/errors"
	"github.com/aidly/aidly-api/pkg/export"
)

var (
	leadingComment = regexp.MustCompile(`^(?s)(\s*(--[^\n]*\n|/\*.*?\*/))*\s*`)
	firstKeyword   = regexp.MustCompile(`^(?i)(select|with)\b`)
)

// ValidateReportQuery accepts a single SELECT or WITH statement.
func ValidateReportQuery(query string) error {
	body := leadingComment.ReplaceAllString(query, "")
	body = strings.TrimRight(strings.TrimSpace(body), ";")
	if !firstKeyword.MatchString(body) {
		return appErrors.ErrUnsafeQuery
	}
	if strings.Contains(body, ";") {
		return appErrors.Clone(appErrors.ErrUnsafeQuery, "report query must be a single statement")
	}
	return nil
}

// MergeParameters overlays request params on the report's declared defaults.
// A declared parameter is either a plain default value or an object with a "default" key.
func MergeParameters(declared models.JSONMap, params map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(declared)+len(params))
	for name, spec := range declared {
		if obj, ok := spec.(map[string]interface{}); ok {
			if def, ok := obj["default"]; ok {
				merged[name] = def
			}
			continue
		}
		merged[name] = spec
	}
	for name, value := range params {
		merged[name] = value
	}
	return merged
}

// ReportRunner executes report templates against the database in read-only transactions.
type ReportRunner struct {
	db               *sqlx.DB
	statementTimeout time.Duration
}

// NewReportRunner constructs a runner.
func NewReportRunner(db *sqlx.DB, statementTimeout time.Duration) *ReportRunner {
	return &ReportRunner{db: db, statementTimeout: statementTimeout}
}

// Run binds params into the report's template and returns the result set.
func (r *ReportRunner) Run(ctx context.Context, report *models.Report, params map[string]interface{}) (export.Dataset, error) {
	if err := ValidateReportQuery(report.QueryTemplate); err != nil {
		return export.Dataset{}, err
	}
	// sqlx reads "::" as an escaped colon; double it so Postgres casts survive binding.
	template := strings.ReplaceAll(report.QueryTemplate, "::", "::::")
	query, args, err := sqlx.Named(template, MergeParameters(report.Parameters, params))
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "report parameters do not match the query")
	}

	dataset := export.Dataset{Title: report.Name}
	err = database.WithTx(ctx, r.db, &sql.TxOptions{ReadOnly: true}, func(tx *sqlx.Tx) error {
		if r.statementTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", r.statementTimeout.Milliseconds())
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("set statement timeout: %w", err)
			}
		}
		rows, err := tx.QueryxContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return fmt.Errorf("run report query: %w", err)
		}
		defer rows.Close()

		if dataset.Headers, err = rows.Columns(); err != nil {
			return fmt.Errorf("read report columns: %w", err)
		}
		for rows.Next() {
			values, err := rows.SliceScan()
			if err != nil {
				return fmt.Errorf("scan report row: %w", err)
			}
			for i, v := range values {
				if b, ok := v.([]byte); ok {
					values[i] = string(b)
				}
			}
			dataset.Rows = append(dataset.Rows, values)
		}
		return rows.Err()
	})
	if err != nil {
		return export.Dataset{}, err
	}
	return dataset, nil
}
