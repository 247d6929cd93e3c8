package services

import (
	"context"

	"github.com/asakaida/warehouse/internal/entities"
	"github.com/asakaida/warehouse/internal/repositories"
	"go.uber.org/zap"
)

// IdentityServiceInterface defines the identity graph operations
type IdentityServiceInterface interface {
	UpsertEntity(ctx context.Context, name string) (*entities.Entity, error)
	GetEntity(ctx context.Context, id int64) (*entities.Entity, error)
	GetEntityByName(ctx context.Context, name string) (*entities.Entity, error)
	DeleteEntity(ctx context.Context, id int64) (*entities.CascadeSummary, error)
	UpsertAccount(ctx context.Context, address string, entityID *int64, reassign bool) (*entities.Account, error)
	GetAccount(ctx context.Context, id int64) (*entities.Account, error)
	GetAccountByAddress(ctx context.Context, address string) (*entities.Account, error)
	ListAccounts(ctx context.Context, entityID int64) ([]*entities.Account, error)
	DeleteAccount(ctx context.Context, address string) (*entities.CascadeSummary, error)
}

// IdentityService manages entities and the accounts they own
type IdentityService struct {
	entityRepo  repositories.EntityRepository
	accountRepo repositories.AccountRepository
	cache       ProjectCache
	logger      *zap.Logger
}

// NewIdentityService creates a new IdentityService. cache and logger may be nil.
func NewIdentityService(
	entityRepo repositories.EntityRepository,
	accountRepo repositories.AccountRepository,
	cache ProjectCache,
	logger *zap.Logger,
) *IdentityService {
	if cache == nil {
		cache = noopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{
		entityRepo:  entityRepo,
		accountRepo: accountRepo,
		cache:       cache,
		logger:      logger.Named("identity"),
	}
}

// UpsertEntity returns the entity with the given name, creating it on first reference
func (s *IdentityService) UpsertEntity(ctx context.Context, name string) (*entities.Entity, error) {
	return s.entityRepo.Upsert(ctx, name)
}

// GetEntity retrieves an entity by ID
func (s *IdentityService) GetEntity(ctx context.Context, id int64) (*entities.Entity, error) {
	return s.entityRepo.Get(ctx, id)
}

// GetEntityByName retrieves an entity by name
func (s *IdentityService) GetEntityByName(ctx context.Context, name string) (*entities.Entity, error) {
	name, err := entities.NormalizeName("name", name)
	if err != nil {
		return nil, err
	}
	return s.entityRepo.GetByName(ctx, name)
}

// DeleteEntity removes an entity and everything reachable from it
func (s *IdentityService) DeleteEntity(ctx context.Context, id int64) (*entities.CascadeSummary, error) {
	summary, err := s.entityRepo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.afterCascade(ctx, summary)
	s.logger.Info("entity deleted",
		zap.Int64("entity_id", id),
		zap.Int64("accounts", summary.Accounts),
		zap.Int64("projects", summary.Projects),
		zap.Int64("attributes", summary.Attributes),
	)
	return summary, nil
}

// UpsertAccount returns the account for address, creating it if absent.
// An account owned by another entity is only moved when reassign is set.
func (s *IdentityService) UpsertAccount(ctx context.Context, address string, entityID *int64, reassign bool) (*entities.Account, error) {
	var before *int64
	if reassign && entityID != nil {
		if existing, err := s.accountRepo.GetByAddress(ctx, address); err == nil {
			before = existing.EntityID
		}
	}

	account, err := s.accountRepo.Upsert(ctx, address, entityID, reassign)
	if err != nil {
		return nil, err
	}

	if before != nil && !account.OwnedBy(*before) {
		s.logger.Info("account reassigned",
			zap.String("address", account.Address),
			zap.Int64("previous_entity_id", *before),
			zap.Int64("entity_id", *entityID),
		)
	}
	return account, nil
}

// GetAccount retrieves an account by ID
func (s *IdentityService) GetAccount(ctx context.Context, id int64) (*entities.Account, error) {
	return s.accountRepo.Get(ctx, id)
}

// GetAccountByAddress retrieves an account by address
func (s *IdentityService) GetAccountByAddress(ctx context.Context, address string) (*entities.Account, error) {
	address, err := entities.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.accountRepo.GetByAddress(ctx, address)
}

// ListAccounts retrieves the accounts owned by an entity; the entity must exist
func (s *IdentityService) ListAccounts(ctx context.Context, entityID int64) ([]*entities.Account, error) {
	if _, err := s.entityRepo.Get(ctx, entityID); err != nil {
		return nil, err
	}
	return s.accountRepo.ListByEntity(ctx, entityID)
}

// DeleteAccount removes an account and the projects anchored to it
func (s *IdentityService) DeleteAccount(ctx context.Context, address string) (*entities.CascadeSummary, error) {
	address, err := entities.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	summary, err := s.accountRepo.Delete(ctx, address)
	if err != nil {
		return nil, err
	}
	s.afterCascade(ctx, summary)
	s.logger.Info("account deleted",
		zap.String("address", address),
		zap.Int64("projects", summary.Projects),
		zap.Int64("attributes", summary.Attributes),
	)
	return summary, nil
}

// afterCascade drops cached views when a cascade removed projects whose IDs are not known here
func (s *IdentityService) afterCascade(ctx context.Context, summary *entities.CascadeSummary) {
	if summary.Projects > 0 {
		s.cache.InvalidateAll(ctx)
	}
}
