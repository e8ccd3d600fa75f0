package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/uptrace/bun"

	"carebook/backend/internal/domain"
	"carebook/backend/internal/store"
)

type ProviderRepo struct {
	db *bun.DB
}

func NewProviderRepo(db *bun.DB) *ProviderRepo {
	return &ProviderRepo{db: db}
}

func (r *ProviderRepo) Upsert(ctx context.Context, p domain.Provider) (domain.Provider, error) {
	m := p
	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("specialty = EXCLUDED.specialty").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return domain.Provider{}, err
	}
	return m, nil
}

func (r *ProviderRepo) Get(ctx context.Context, id string) (domain.Provider, error) {
	var row domain.Provider
	err := r.db.NewSelect().
		Model(&row).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Provider{}, store.ErrNotFound
		}
		return domain.Provider{}, err
	}
	return row, nil
}

func (r *ProviderRepo) Search(ctx context.Context, query string, page, perPage int) (int, []domain.Provider, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	var rows []domain.Provider
	q := r.db.NewSelect().Model(&rows)
	if s := strings.TrimSpace(query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("lower(name) LIKE ?", like).
				WhereOr("lower(specialty) LIKE ?", like)
		})
	}
	total, err := q.
		OrderExpr("id ASC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		ScanAndCount(ctx)
	if err != nil {
		return 0, nil, err
	}
	return total, rows, nil
}
