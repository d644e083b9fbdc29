package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/alama/core"
	"github.com/trezcool/alama/core/user"
)

const userColumns = `id, full_name, code, email, role, is_active, password_hash, created_at, updated_at`

type userRow struct {
	ID           string     `db:"id"`
	FullName     string     `db:"full_name"`
	Code         string     `db:"code"`
	Email        string     `db:"email"`
	Role         string     `db:"role"`
	IsActive     bool       `db:"is_active"`
	PasswordHash null.Bytes `db:"password_hash"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		FullName:     r.FullName,
		Code:         r.Code,
		Email:        r.Email,
		Role:         r.Role,
		IsActive:     r.IsActive,
		PasswordHash: r.PasswordHash.Bytes,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) CheckUniqueness(ctx context.Context, email, code string) error {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 OR code = $2)`
	if err := repo.exec.GetContext(ctx, &exists, q, email, code); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if exists {
		return user.ErrUserExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	q := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING ` + userColumns

	var row userRow
	err := repo.exec.GetContext(
		ctx, &row, q,
		usr.ID, usr.FullName, usr.Code, usr.Email, usr.Role, usr.IsActive,
		null.BytesFrom(usr.PasswordHash), usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.user(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter) ([]user.User, error) {
	var w where
	if filter != nil {
		if filter.Role != "" {
			w.add("role = ?", filter.Role)
		}
		if filter.IDs != nil {
			ids := make([]string, 0, len(filter.IDs))
			for _, id := range filter.IDs {
				if isUUID(id) {
					ids = append(ids, id)
				}
			}
			w.add("id = ANY(?::uuid[])", pq.Array(ids))
		}
	}

	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM users` + w.String() + ` ORDER BY full_name, code`
	if err := repo.exec.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var w where
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.Email != "":
		w.add("email = ?", filter.Email)
	case filter.Code != "":
		w.add("code = ?", filter.Code)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := `SELECT ` + userColumns + ` FROM users` + w.String() + ` LIMIT 1`
	if err := repo.exec.GetContext(ctx, &row, q, w.args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "selecting user")
	}
	return row.user(), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users
		SET full_name = $2, code = $3, email = $4, role = $5, is_active = $6, password_hash = $7, updated_at = $8
		WHERE id = $1
		RETURNING ` + userColumns

	var row userRow
	err := repo.exec.GetContext(
		ctx, &row, q,
		usr.ID, usr.FullName, usr.Code, usr.Email, usr.Role, usr.IsActive,
		null.BytesFrom(usr.PasswordHash), usr.UpdatedAt.UTC(),
	)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "updating user")
	}
	return row.user(), nil
}
