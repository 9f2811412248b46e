package repository

import (
	"context"

	"github.com/qs3c/medforum_server/internal/model"
	"github.com/qs3c/medforum_server/internal/pkg/docstore"
)

const UserCollection = "users"

type UserRepository struct {
	store docstore.Store
}

func NewUserRepository(store docstore.Store) *UserRepository {
	return &UserRepository{store: store}
}

// GetByID 根据 ID 获取用户
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.store.Get(ctx, UserCollection, id, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIDs 批量获取用户，按 ID 索引
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	result := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var users []*model.User
	err := r.store.Query(ctx, docstore.Query{
		Collection: UserCollection,
		Filters:    []docstore.Filter{docstore.Where("id", docstore.OpIn, ids)},
	}, &users)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}
