package store

import (
	"context"

	"carebook/backend/internal/domain"
)

type ProviderRepository interface {
	Upsert(ctx context.Context, p domain.Provider) (domain.Provider, error)
	Get(ctx context.Context, id string) (domain.Provider, error)
	Search(ctx context.Context, query string, page, perPage int) (total int, providers []domain.Provider, err error)
}
