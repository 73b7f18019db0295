package webhook

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskbridge/deskbridge/internal/db"
)

// PGStore reads webhook rules from Postgres. Rules join their service to
// expose the upstream project key for scoping.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) ListEnabled(ctx context.Context, userID string) ([]Rule, error) {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT w.id, w.user_id, w.service_id, COALESCE(s.project_key, ''),
		       w.name, w.url, w.enabled, w.filter_enabled,
		       COALESCE(w.filter_condition, ''), COALESCE(w.filter_value, ''),
		       w.created_at
		FROM webhook_rules w
		LEFT JOIN services s ON s.id = w.service_id
		WHERE w.user_id = $1 AND w.enabled
		ORDER BY w.created_at DESC`, pgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var (
			id        pgtype.UUID
			ruleUser  pgtype.UUID
			serviceID pgtype.UUID
			rule      Rule
			createdAt time.Time
		)
		if err := rows.Scan(&id, &ruleUser, &serviceID, &rule.ProjectKey,
			&rule.Name, &rule.URL, &rule.Enabled, &rule.FilterEnabled,
			&rule.FilterCondition, &rule.FilterValue, &createdAt); err != nil {
			return nil, err
		}
		rule.ID = db.UUIDString(id)
		rule.UserID = db.UUIDString(ruleUser)
		rule.ServiceID = db.UUIDString(serviceID)
		rule.CreatedAt = createdAt
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
