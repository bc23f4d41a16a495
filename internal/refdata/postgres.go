package refdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sony/gobreaker"
)

// PostgresSource loads the reference table from a reference_records
// table. All queries run through a circuit breaker so a flapping
// database cannot be hammered by staleness polling.
type PostgresSource struct {
	db      *sqlx.DB
	fields  []string // canonical matchable field names, table order
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewPostgresSource creates a source reading the given matchable fields.
func NewPostgresSource(db *sqlx.DB, fields []string, timeout time.Duration) *PostgresSource {
	settings := gobreaker.Settings{
		Name:    "refdata-postgres",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &PostgresSource{
		db:      db,
		fields:  fields,
		timeout: timeout,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// ColumnName maps a canonical field name to its snake_case column.
func ColumnName(field string) string {
	return strings.ReplaceAll(strings.ToLower(field), " ", "_")
}

// Fingerprint returns a row-count plus max-updated-at digest.
func (s *PostgresSource) Fingerprint(ctx context.Context) (string, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		var fp struct {
			Count   int64  `db:"count"`
			Updated string `db:"updated"`
		}
		query := `SELECT COUNT(*) AS count, COALESCE(MAX(updated_at)::text, '') AS updated FROM reference_records`
		if err := s.db.GetContext(ctx, &fp, query); err != nil {
			return "", fmt.Errorf("failed to fingerprint reference_records: %w", err)
		}
		return fmt.Sprintf("pg:%d:%s", fp.Count, fp.Updated), nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Load reads the full table ordered by id, preserving reference order
// for the scorer's stable ranking.
func (s *PostgresSource) Load(ctx context.Context) (*Table, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		columns := []string{"parasite", "group_id", "subtype", "key_test"}
		for _, field := range s.fields {
			columns = append(columns, ColumnName(field))
		}
		query := fmt.Sprintf(`SELECT %s FROM reference_records ORDER BY id`, strings.Join(columns, ", "))

		rows, err := s.db.QueryxContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to query reference_records: %w", err)
		}
		defer rows.Close()

		var records []Record
		for rows.Next() {
			row := make(map[string]interface{})
			if err := rows.MapScan(row); err != nil {
				return nil, fmt.Errorf("failed to scan reference row: %w", err)
			}

			rec := Record{
				Parasite: textColumn(row, "parasite"),
				Group:    intColumn(row, "group_id", GroupUnassigned),
				Subtype:  textColumn(row, "subtype"),
				KeyTest:  textColumn(row, "key_test"),
				Fields:   make(map[string]string, len(s.fields)),
			}
			for _, field := range s.fields {
				rec.Fields[field] = textColumn(row, ColumnName(field))
			}

			if rec.Parasite == "" {
				continue
			}
			records = append(records, rec)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("reference_records iteration failed: %w", err)
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}

	fingerprint, err := s.Fingerprint(ctx)
	if err != nil {
		return nil, err
	}

	return &Table{
		Records:     result.([]Record),
		Fingerprint: fingerprint,
		Source:      "postgres:reference_records",
		LoadedAt:    time.Now().UTC(),
	}, nil
}

func textColumn(row map[string]interface{}, column string) string {
	switch v := row[column].(type) {
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	default:
		return ""
	}
}

func intColumn(row map[string]interface{}, column string, fallback int) int {
	switch v := row[column].(type) {
	case int64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
