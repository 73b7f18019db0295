package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskbridge/deskbridge/internal/db"
)

// PGStore is the Postgres-backed tenant store.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) GetService(ctx context.Context, serviceID string) (Service, error) {
	pgID, err := db.ParseUUID(serviceID)
	if err != nil {
		return Service{}, fmt.Errorf("%w: %v", ErrServiceNotFound, err)
	}

	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, project_key, assistant_id, created_at
		FROM services
		WHERE id = $1`, pgID)
	svc, err := scanService(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, ErrServiceNotFound
	}
	return svc, err
}

func (s *PGStore) ListServices(ctx context.Context, userID string) ([]Service, error) {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, name, project_key, assistant_id, created_at
		FROM services
		WHERE user_id = $1
		ORDER BY created_at DESC`, pgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (s *PGStore) FindServiceByProject(ctx context.Context, userID, projectKey string) (Service, error) {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return Service{}, err
	}

	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, project_key, assistant_id, created_at
		FROM services
		WHERE user_id = $1 AND project_key = $2
		ORDER BY created_at DESC
		LIMIT 1`, pgID, projectKey)
	svc, err := scanService(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, ErrServiceNotFound
	}
	return svc, err
}

func (s *PGStore) GetConfig(ctx context.Context, userID string) (Config, error) {
	pgID, err := db.ParseUUID(userID)
	if err != nil {
		return Config{}, err
	}

	row := s.pool.QueryRow(ctx, `
		SELECT user_id, requested_domain, admin_approved, project_key,
		       disabled_tickets, disable_states, updated_at
		FROM tenant_configs
		WHERE user_id = $1`, pgID)
	cfg, err := scanConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, ErrConfigNotFound
	}
	return cfg, err
}

func (s *PGStore) UpsertConfig(ctx context.Context, cfg Config) (Config, error) {
	pgID, err := db.ParseUUID(cfg.UserID)
	if err != nil {
		return Config{}, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO tenant_configs (user_id, requested_domain, admin_approved,
		                            project_key, disabled_tickets, disable_states, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (user_id) DO UPDATE SET
			requested_domain = EXCLUDED.requested_domain,
			admin_approved   = EXCLUDED.admin_approved,
			project_key      = EXCLUDED.project_key,
			disabled_tickets = EXCLUDED.disabled_tickets,
			disable_states   = EXCLUDED.disable_states,
			updated_at       = now()
		RETURNING user_id, requested_domain, admin_approved, project_key,
		          disabled_tickets, disable_states, updated_at`,
		pgID, cfg.RequestedDomain, cfg.AdminApproved, cfg.ProjectKey,
		cfg.DisabledTickets, cfg.DisableStates)
	return scanConfig(row)
}

func (s *PGStore) ListApprovedDomains(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT requested_domain
		FROM tenant_configs
		WHERE admin_approved AND requested_domain <> ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, err
		}
		domains = append(domains, domain)
	}
	return domains, rows.Err()
}

func scanService(row pgx.Row) (Service, error) {
	var (
		id        pgtype.UUID
		userID    pgtype.UUID
		svc       Service
		createdAt time.Time
	)
	if err := row.Scan(&id, &userID, &svc.Name, &svc.ProjectKey, &svc.AssistantID, &createdAt); err != nil {
		return Service{}, err
	}
	svc.ID = db.UUIDString(id)
	svc.UserID = db.UUIDString(userID)
	svc.CreatedAt = createdAt
	return svc, nil
}

func scanConfig(row pgx.Row) (Config, error) {
	var (
		userID    pgtype.UUID
		cfg       Config
		updatedAt time.Time
	)
	if err := row.Scan(&userID, &cfg.RequestedDomain, &cfg.AdminApproved,
		&cfg.ProjectKey, &cfg.DisabledTickets, &cfg.DisableStates, &updatedAt); err != nil {
		return Config{}, err
	}
	cfg.UserID = db.UUIDString(userID)
	cfg.UpdatedAt = updatedAt
	return cfg, nil
}
