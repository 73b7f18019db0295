package tenants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrServiceNotFound indicates an unknown or foreign service id.
var ErrServiceNotFound = errors.New("service not found")

// ErrConfigNotFound indicates the tenant has no settings record yet.
var ErrConfigNotFound = errors.New("tenant config not found")

// Store persists tenant services and settings.
type Store interface {
	GetService(ctx context.Context, serviceID string) (Service, error)
	ListServices(ctx context.Context, userID string) ([]Service, error)
	FindServiceByProject(ctx context.Context, userID, projectKey string) (Service, error)
	GetConfig(ctx context.Context, userID string) (Config, error)
	UpsertConfig(ctx context.Context, cfg Config) (Config, error)
	ListApprovedDomains(ctx context.Context) ([]string, error)
}

// Manager reads tenant services and mediates settings writes.
type Manager struct {
	store  Store
	logger *slog.Logger
}

func NewManager(log *slog.Logger, store Store) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:  store,
		logger: log.With(slog.String("service", "tenants")),
	}
}

// GetService resolves a service by id.
func (m *Manager) GetService(ctx context.Context, serviceID string) (Service, error) {
	if strings.TrimSpace(serviceID) == "" {
		return Service{}, fmt.Errorf("%w: empty id", ErrServiceNotFound)
	}
	return m.store.GetService(ctx, serviceID)
}

// ListServices returns every service owned by the tenant.
func (m *Manager) ListServices(ctx context.Context, userID string) ([]Service, error) {
	return m.store.ListServices(ctx, userID)
}

// FindServiceByProject resolves the tenant's service bound to an upstream
// project key.
func (m *Manager) FindServiceByProject(ctx context.Context, userID, projectKey string) (Service, error) {
	if strings.TrimSpace(projectKey) == "" {
		return Service{}, fmt.Errorf("%w: empty project key", ErrServiceNotFound)
	}
	return m.store.FindServiceByProject(ctx, userID, projectKey)
}

// GetConfig reads the tenant settings record.
func (m *Manager) GetConfig(ctx context.Context, userID string) (Config, error) {
	return m.store.GetConfig(ctx, userID)
}

// SetDomainApproval records the tenant's requested widget domain and its
// admin approval flag. Callers are expected to update the trust cache
// alongside so the decision takes effect without waiting for a TTL refresh.
func (m *Manager) SetDomainApproval(ctx context.Context, userID, domain string, approved bool) (Config, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return Config{}, fmt.Errorf("domain is required")
	}

	current, err := m.store.GetConfig(ctx, userID)
	if err != nil && !errors.Is(err, ErrConfigNotFound) {
		return Config{}, err
	}
	current.UserID = userID
	current.RequestedDomain = domain
	current.AdminApproved = approved

	updated, err := m.store.UpsertConfig(ctx, current)
	if err != nil {
		return Config{}, fmt.Errorf("upsert tenant config: %w", err)
	}
	m.logger.Info("domain approval updated",
		slog.String("user_id", userID),
		slog.String("domain", domain),
		slog.Bool("approved", approved))
	return updated, nil
}

// ApprovedDomains lists every admin-approved tenant domain. Implements the
// trust cache's origin source.
func (m *Manager) ApprovedDomains(ctx context.Context) ([]string, error) {
	return m.store.ListApprovedDomains(ctx)
}
