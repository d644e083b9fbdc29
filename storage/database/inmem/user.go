package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/alama/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.t))
	for _, u := range repo.db.t {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].FullName == users[j].FullName {
			return users[i].Code < users[j].Code
		}
		return users[i].FullName < users[j].FullName
	})
	return users
}

func (repo *userRepository) CheckUniqueness(_ context.Context, email, code string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.t {
		if usr.Email == email || usr.Code == code {
			return user.ErrUserExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = uuid.New().String()
	repo.db.t[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	all := repo.query()
	if filter == nil {
		return all, nil
	}

	var ids map[string]bool
	if filter.IDs != nil {
		ids = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}
	users := make([]user.User, 0, len(all))
	for _, usr := range all {
		if filter.Role != "" && usr.Role != filter.Role {
			continue
		}
		if ids != nil && !ids[usr.ID] {
			continue
		}
		users = append(users, usr)
	}
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.t[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.t {
		if (filter.Email != "" && usr.Email == filter.Email) || (filter.Code != "" && usr.Code == filter.Code) {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.t[usr.ID] = &usr
	return usr, nil
}
