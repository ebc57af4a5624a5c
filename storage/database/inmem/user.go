package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/askuphq/askup/core"
	"github.com/askuphq/askup/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		users = append(users, *usr)
	}
	return users
}

func isExcluded(usr user.User, excluded []user.User) bool {
	for _, excl := range excluded {
		if usr.ID == excl.ID {
			return true
		}
	}
	return false
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.query() {
		if (usr.Username == username || usr.Email == email) && !isExcluded(usr, excludedUsers) {
			return user.ErrUserExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = uuid.New().String()
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var users []user.User
	for _, usr := range repo.query() {
		if filter != nil && !matchesFilter(usr, filter) {
			continue
		}
		users = append(users, usr)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func matchesFilter(usr user.User, filter *user.QueryFilter) bool {
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(usr.Name), search) &&
			!strings.Contains(strings.ToLower(usr.Username), search) &&
			!strings.Contains(strings.ToLower(usr.Email), search) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		var hasRole bool
		for _, role := range filter.Roles {
			for _, r := range usr.Roles {
				if r == role {
					hasRole = true
				}
			}
		}
		if !hasRole {
			return false
		}
	}
	if filter.IsActive != nil && usr.Active() != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.query() {
		switch {
		case filter.ID != "" && usr.ID == filter.ID:
			return usr, nil
		case filter.Username != "" && usr.Username == filter.Username:
			return usr, nil
		case filter.Email != "" && usr.Email == filter.Email:
			return usr, nil
		case len(filter.UsernameOrEmail) == 2 &&
			(usr.Username == filter.UsernameOrEmail[0] || usr.Email == filter.UsernameOrEmail[1]):
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// only save set fields
	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if usr.Name != "" {
		orig.Name = usr.Name
	}
	if usr.Username != "" {
		orig.Username = usr.Username
	}
	if usr.Email != "" {
		orig.Email = usr.Email
	}
	if usr.IsActive != nil {
		orig.IsActive = usr.IsActive
	}
	if usr.Roles != nil {
		orig.Roles = usr.Roles
	}
	if len(usr.PasswordHash) > 0 {
		orig.PasswordHash = usr.PasswordHash
	}
	if !usr.UpdatedAt.IsZero() {
		orig.UpdatedAt = usr.UpdatedAt
	}
	if !usr.LastLogin.IsZero() {
		orig.LastLogin = usr.LastLogin
	}
	return *orig, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	existing, err := repo.GetUser(ctx, user.GetFilter{Username: usr.Username})
	if err != nil {
		if err == user.ErrNotFound {
			return repo.CreateUser(ctx, usr)
		}
		return user.User{}, err
	}
	usr.ID = existing.ID
	return repo.UpdateUser(ctx, usr)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.users[id]; ok {
			delete(repo.db.users, id)
			n++
		}
	}
	return n, nil
}
