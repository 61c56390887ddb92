package inmemdb

import (
	"context"

	"github.com/samber/lo"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotifications(_ context.Context, ns ...notification.Notification) ([]notification.Notification, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	created := make([]notification.Notification, 0, len(ns))
	for _, n := range ns {
		if _, ok := repo.db.t.users[n.UserID]; !ok {
			return nil, core.NewNotFoundError("user", n.UserID)
		}
		n.ID = newID(n.ID)
		repo.db.t.notifications[n.ID] = n
		created = append(created, n)
	}
	return created, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if n, ok := repo.db.t.notifications[id]; ok {
		return n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, filter notification.QueryFilter) ([]notification.Notification, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ns := lo.Filter(lo.Values(repo.db.t.notifications), func(n notification.Notification, _ int) bool {
		return (filter.UserID == "" || n.UserID == filter.UserID) &&
			(filter.Type == "" || n.Type == filter.Type) &&
			(filter.IsRead == nil || n.IsRead == *filter.IsRead)
	})
	sortBy(ns, nil, comparators[notification.Notification]{
		"createdAt": func(a, b notification.Notification) int { return compareTime(a.CreatedAt, b.CreatedAt) },
	}, core.DBOrdering{Field: "createdAt"})
	return ns, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, userID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	return lo.CountBy(lo.Values(repo.db.t.notifications), func(n notification.Notification) bool {
		return n.UserID == userID && !n.IsRead
	}), nil
}

func (repo *notificationRepository) UpdateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.t.notifications[n.ID]
	if !ok {
		return notification.Notification{}, notification.ErrNotFound
	}
	stored.Type = n.Type
	stored.Title = n.Title
	stored.Message = n.Message
	stored.IsRead = n.IsRead
	repo.db.t.notifications[n.ID] = stored
	return stored, nil
}

func (repo *notificationRepository) DeleteNotification(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.notifications[id]; !ok {
		return notification.ErrNotFound
	}
	delete(repo.db.t.notifications, id)
	return nil
}

// update applies fn to the matching notifications and counts them.
func (repo *notificationRepository) update(match func(n notification.Notification) bool, fn func(n *notification.Notification)) int {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var count int
	for id, n := range repo.db.t.notifications {
		if match(n) {
			fn(&n)
			repo.db.t.notifications[id] = n
			count++
		}
	}
	return count
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, userID string) (int, error) {
	return repo.update(
		func(n notification.Notification) bool { return n.UserID == userID && !n.IsRead },
		func(n *notification.Notification) { n.IsRead = true },
	), nil
}

func (repo *notificationRepository) DeleteByStudent(_ context.Context, studentID string, typ notification.Type) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var count int
	for id, n := range repo.db.t.notifications {
		if core.StringValue(n.StudentID) == studentID && n.Type == typ {
			delete(repo.db.t.notifications, id)
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) RewriteByStudent(_ context.Context, studentID string, from, to notification.Type, title, message string) (int, error) {
	return repo.update(
		func(n notification.Notification) bool { return core.StringValue(n.StudentID) == studentID && n.Type == from },
		func(n *notification.Notification) {
			n.Type = to
			n.Title = title
			n.Message = message
			n.IsRead = false
		},
	), nil
}
