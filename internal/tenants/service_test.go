package tenants

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	getServiceFunc  func(ctx context.Context, serviceID string) (Service, error)
	getConfigFunc   func(ctx context.Context, userID string) (Config, error)
	upsertFunc      func(ctx context.Context, cfg Config) (Config, error)
	listDomainsFunc func(ctx context.Context) ([]string, error)
}

func (f *fakeStore) GetService(ctx context.Context, serviceID string) (Service, error) {
	if f.getServiceFunc == nil {
		return Service{}, ErrServiceNotFound
	}
	return f.getServiceFunc(ctx, serviceID)
}

func (f *fakeStore) ListServices(ctx context.Context, userID string) ([]Service, error) {
	return nil, nil
}

func (f *fakeStore) FindServiceByProject(ctx context.Context, userID, projectKey string) (Service, error) {
	return Service{}, ErrServiceNotFound
}

func (f *fakeStore) GetConfig(ctx context.Context, userID string) (Config, error) {
	if f.getConfigFunc == nil {
		return Config{}, ErrConfigNotFound
	}
	return f.getConfigFunc(ctx, userID)
}

func (f *fakeStore) UpsertConfig(ctx context.Context, cfg Config) (Config, error) {
	if f.upsertFunc == nil {
		return cfg, nil
	}
	return f.upsertFunc(ctx, cfg)
}

func (f *fakeStore) ListApprovedDomains(ctx context.Context) ([]string, error) {
	if f.listDomainsFunc == nil {
		return nil, nil
	}
	return f.listDomainsFunc(ctx)
}

func TestSetDomainApprovalCreatesMissingConfig(t *testing.T) {
	t.Parallel()

	var written Config
	store := &fakeStore{
		upsertFunc: func(ctx context.Context, cfg Config) (Config, error) {
			written = cfg
			return cfg, nil
		},
	}
	manager := NewManager(nil, store)

	cfg, err := manager.SetDomainApproval(context.Background(), "user-1", "  Example.COM ", true)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if written.RequestedDomain != "example.com" {
		t.Fatalf("expected normalized domain, got %q", written.RequestedDomain)
	}
	if !cfg.AdminApproved {
		t.Fatalf("expected approval flag to be set")
	}
}

func TestSetDomainApprovalPreservesOtherFields(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		getConfigFunc: func(ctx context.Context, userID string) (Config, error) {
			return Config{
				UserID:          userID,
				DisabledTickets: []string{"SUP-7"},
				DisableStates:   []string{"closed"},
			}, nil
		},
		upsertFunc: func(ctx context.Context, cfg Config) (Config, error) {
			return cfg, nil
		},
	}
	manager := NewManager(nil, store)

	cfg, err := manager.SetDomainApproval(context.Background(), "user-1", "example.com", false)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(cfg.DisabledTickets) != 1 || cfg.DisabledTickets[0] != "SUP-7" {
		t.Fatalf("expected disabled tickets to survive, got %v", cfg.DisabledTickets)
	}
	if cfg.AdminApproved {
		t.Fatalf("expected approval flag cleared")
	}
}

func TestSetDomainApprovalRejectsEmptyDomain(t *testing.T) {
	t.Parallel()

	manager := NewManager(nil, &fakeStore{})
	if _, err := manager.SetDomainApproval(context.Background(), "user-1", "  ", true); err == nil {
		t.Fatalf("expected error for empty domain")
	}
}

func TestSetDomainApprovalPropagatesStoreError(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("connection reset")
	store := &fakeStore{
		getConfigFunc: func(ctx context.Context, userID string) (Config, error) {
			return Config{}, storeErr
		},
	}
	manager := NewManager(nil, store)

	if _, err := manager.SetDomainApproval(context.Background(), "user-1", "example.com", true); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestConfigTicketDisabled(t *testing.T) {
	t.Parallel()

	cfg := Config{DisabledTickets: []string{"SUP-1", "SUP-2"}}
	if !cfg.TicketDisabled("SUP-2") {
		t.Fatalf("expected SUP-2 disabled")
	}
	if cfg.TicketDisabled("SUP-3") {
		t.Fatalf("expected SUP-3 enabled")
	}
}
