package sqlxrepos

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core/notification"
	"github.com/trezcool/registrar/storage/database"
)

const notificationColumns = `id, user_id, type, title, message, student_id, enrollment_id, is_read, created_at`

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *sqlx.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo notificationRepository) CreateNotifications(ctx context.Context, ns ...notification.Notification) ([]notification.Notification, error) {
	exec := database.Executor(ctx, repo.db)
	for i := range ns {
		n := &ns[i]
		n.ID = newID(n.ID)
		if _, err := exec.ExecContext(ctx,
			`INSERT INTO notifications (`+notificationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			n.ID, n.UserID, n.Type, n.Title, n.Message, n.StudentID, n.EnrollmentID, n.IsRead, n.CreatedAt); err != nil {
			return nil, database.TrapErr(err, notification.ErrNotFound, "inserting notification")
		}
	}
	return ns, nil
}

func (repo notificationRepository) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	var n notification.Notification
	if !validID(id) {
		return n, notification.ErrNotFound
	}
	err := database.Executor(ctx, repo.db).GetContext(ctx, &n,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	return n, database.TrapErr(err, notification.ErrNotFound, "getting notification")
}

func (repo notificationRepository) QueryNotifications(ctx context.Context, filter notification.QueryFilter) ([]notification.Notification, error) {
	args := []interface{}{filter.UserID}
	q := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	if filter.Type != "" {
		args = append(args, filter.Type)
		q += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.IsRead != nil {
		args = append(args, *filter.IsRead)
		q += fmt.Sprintf(" AND is_read = $%d", len(args))
	}
	q += ` ORDER BY created_at DESC`

	ns := []notification.Notification{}
	err := database.Executor(ctx, repo.db).SelectContext(ctx, &ns, q, args...)
	return ns, errors.Wrap(err, "querying notifications")
}

func (repo notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := database.Executor(ctx, repo.db).GetContext(ctx, &n,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID)
	return n, errors.Wrap(err, "counting unread notifications")
}

func (repo notificationRepository) UpdateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`UPDATE notifications SET type = $2, title = $3, message = $4, is_read = $5 WHERE id = $1`,
		n.ID, n.Type, n.Title, n.Message, n.IsRead)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "updating notification")
	}
	return n, mustAffect(res, notification.ErrNotFound)
}

func (repo notificationRepository) DeleteNotification(ctx context.Context, id string) error {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return database.TrapErr(err, notification.ErrNotFound, "deleting notification")
	}
	return mustAffect(res, notification.ErrNotFound)
}

func (repo notificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	return affected(res)
}

func (repo notificationRepository) DeleteByStudent(ctx context.Context, studentID string, typ notification.Type) (int, error) {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`DELETE FROM notifications WHERE student_id = $1 AND type = $2`, studentID, typ)
	if err != nil {
		return 0, errors.Wrap(err, "deleting student notifications")
	}
	return affected(res)
}

func (repo notificationRepository) RewriteByStudent(ctx context.Context, studentID string, from, to notification.Type, title, message string) (int, error) {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`UPDATE notifications SET type = $3, title = $4, message = $5, is_read = FALSE
		WHERE student_id = $1 AND type = $2`, studentID, from, to, title, message)
	if err != nil {
		return 0, errors.Wrap(err, "rewriting student notifications")
	}
	return affected(res)
}
