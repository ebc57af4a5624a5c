package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/askuphq/askup/core"
	"github.com/askuphq/askup/core/user"
)

type userRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	IsActive     bool      `db:"is_active"`
	Roles        string    `db:"roles"` // comma-separated
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

func (row userRow) user() user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastLogin:    row.LastLogin.Time,
	}
	usr.SetActive(row.IsActive)
	if row.Roles != "" {
		usr.Roles = strings.Split(row.Roles, ",")
	}
	return usr
}

const selectUser = `
SELECT id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login
FROM "user"`

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sql.DB, conf *core.Config) *userRepository {
	return &userRepository{db: sqlx.NewDb(db, conf.Database.Engine)}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	exclIDs := make([]string, len(excludedUsers))
	for i, usr := range excludedUsers {
		exclIDs[i] = usr.ID
	}

	var exists bool
	err := sqlx.GetContext(ctx, ext(repo.db, exec), &exists, `
SELECT EXISTS(
    SELECT 1 FROM "user"
    WHERE (username = $1 OR email = $2)
      AND id <> ALL ($3)
)`,
		username, email, pq.Array(exclIDs))
	if err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	if exists {
		return user.ErrUserExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	_, err := ext(repo.db, exec).ExecContext(ctx, `
INSERT INTO "user" (id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.Active(),
		strings.Join(usr.Roles, ","), usr.PasswordHash,
		usr.CreatedAt, usr.UpdatedAt, null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
	)
	if err != nil {
		if uniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	query := selectUser
	var clauses []string
	var args []interface{}

	if filter != nil {
		if filter.Search != "" {
			args = append(args, "%"+filter.Search+"%")
			n := len(args)
			clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR username ILIKE $%d OR email ILIKE $%d)", n, n, n))
		}
		if len(filter.Roles) > 0 {
			roleClauses := make([]string, len(filter.Roles))
			for i, role := range filter.Roles {
				args = append(args, "%"+role+"%")
				roleClauses[i] = fmt.Sprintf("roles LIKE $%d", len(args))
			}
			clauses = append(clauses, "("+strings.Join(roleClauses, " OR ")+")")
		}
		if filter.IsActive != nil {
			args = append(args, *filter.IsActive)
			clauses = append(clauses, fmt.Sprintf("is_active = $%d", len(args)))
		}
		if !filter.CreatedFrom.IsZero() {
			args = append(args, filter.CreatedFrom)
			clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
		}
		if !filter.CreatedTo.IsZero() {
			args = append(args, filter.CreatedTo)
			clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	if len(ordering) > 0 {
		orders := make([]string, len(ordering))
		for i, ord := range ordering {
			orders[i] = ord.String()
		}
		query += " ORDER BY " + strings.Join(orders, ", ")
	}

	var rows []userRow
	if err := sqlx.SelectContext(ctx, ext(repo.db, exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, len(rows))
	for i, row := range rows {
		users[i] = row.user()
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	query := selectUser
	var args []interface{}
	switch {
	case filter.ID != "":
		query += ` WHERE id = $1`
		args = append(args, filter.ID)
	case filter.Username != "":
		query += ` WHERE username = $1`
		args = append(args, filter.Username)
	case filter.Email != "":
		query += ` WHERE email = $1`
		args = append(args, filter.Email)
	case len(filter.UsernameOrEmail) == 2:
		query += ` WHERE username = $1 OR email = $2`
		args = append(args, filter.UsernameOrEmail[0], filter.UsernameOrEmail[1])
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := sqlx.GetContext(ctx, ext(repo.db, exec), &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	// only set fields overwrite
	orig, err := repo.GetUser(ctx, user.GetFilter{ID: usr.ID}, exec...)
	if err != nil {
		return user.User{}, err
	}
	if usr.Name == "" {
		usr.Name = orig.Name
	}
	if usr.Username == "" {
		usr.Username = orig.Username
	}
	if usr.Email == "" {
		usr.Email = orig.Email
	}
	if usr.IsActive == nil {
		usr.IsActive = orig.IsActive
	}
	if usr.Roles == nil {
		usr.Roles = orig.Roles
	}
	if len(usr.PasswordHash) == 0 {
		usr.PasswordHash = orig.PasswordHash
	}
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = orig.CreatedAt
	}
	if usr.UpdatedAt.IsZero() {
		usr.UpdatedAt = orig.UpdatedAt
	}
	if usr.LastLogin.IsZero() {
		usr.LastLogin = orig.LastLogin
	}

	_, err = ext(repo.db, exec).ExecContext(ctx, `
UPDATE "user"
SET name = $1, username = $2, email = $3, is_active = $4, roles = $5,
    password_hash = $6, updated_at = $7, last_login = $8
WHERE id = $9`,
		usr.Name, usr.Username, usr.Email, usr.Active(), strings.Join(usr.Roles, ","),
		usr.PasswordHash, usr.UpdatedAt, null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()), usr.ID,
	)
	if err != nil {
		if uniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	existing, err := repo.GetUser(ctx, user.GetFilter{Username: usr.Username}, exec...)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return repo.CreateUser(ctx, usr, exec...)
		}
		return user.User{}, err
	}
	usr.ID = existing.ID
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	res, err := ext(repo.db, exec).ExecContext(ctx, `DELETE FROM "user" WHERE id = ANY ($1)`, pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting users")
}
