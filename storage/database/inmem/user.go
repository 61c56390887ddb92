package inmemdb

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) checkUniqueness(username, email, excludedID string) error {
	for _, usr := range repo.db.t.users {
		if usr.ID == excludedID {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email, excludedID string) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.checkUniqueness(username, email, excludedID)
}

func (repo *userRepository) save(usr user.User) (user.User, error) {
	if err := repo.checkUniqueness(usr.Username, usr.Email, usr.ID); err != nil {
		return user.User{}, core.NewConflictError("%s", err.Error())
	}
	usr.Roles = append([]string(nil), usr.Roles...)
	repo.db.t.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr.ID = newID(usr.ID)
	return repo.save(usr)
}

var userComparators = comparators[user.User]{
	"name":      func(a, b user.User) int { return strings.Compare(a.Name, b.Name) },
	"username":  func(a, b user.User) int { return strings.Compare(a.Username, b.Username) },
	"email":     func(a, b user.User) int { return strings.Compare(a.Email, b.Email) },
	"isActive":  func(a, b user.User) int { return compareBool(a.IsActive, b.IsActive) },
	"createdAt": func(a, b user.User) int { return compareTime(a.CreatedAt, b.CreatedAt) },
	"lastLogin": func(a, b user.User) int { return compareTime(a.LastLogin, b.LastLogin) },
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := lo.Filter(lo.Values(repo.db.t.users), func(usr user.User, _ int) bool {
		if filter == nil {
			return true
		}
		if filter.Search != "" &&
			!(containsFold(usr.Name, filter.Search) || containsFold(usr.Username, filter.Search) || containsFold(usr.Email, filter.Search)) {
			return false
		}
		// any role that starts with any of the provided roles
		if len(filter.Roles) > 0 && !lo.SomeBy(usr.Roles, func(role string) bool {
			return lo.SomeBy(filter.Roles, func(prefix string) bool {
				return strings.HasPrefix(strings.ToLower(role), strings.ToLower(prefix))
			})
		}) {
			return false
		}
		return filter.IsActive == nil || usr.IsActive == *filter.IsActive
	})
	sortBy(users, ordering, userComparators, core.DBOrdering{Field: "createdAt"})
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var match func(usr user.User) bool
	switch {
	case filter.ID != "":
		match = func(usr user.User) bool { return usr.ID == filter.ID }
	case filter.Username != "":
		match = func(usr user.User) bool { return usr.Username == filter.Username }
	case filter.Email != "":
		match = func(usr user.User) bool { return usr.Email == filter.Email }
	case filter.UsernameOrEmail != "":
		match = func(usr user.User) bool {
			return usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail
		}
	default:
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.t.users {
		if match(usr) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	return repo.save(usr)
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.t.users[id]; !ok {
			continue
		}
		delete(repo.db.t.users, id)
		n++
		for nid, ntf := range repo.db.t.notifications {
			if ntf.UserID == id {
				delete(repo.db.t.notifications, nid)
			}
		}
	}
	return n, nil
}
