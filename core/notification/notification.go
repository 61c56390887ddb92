// Package notification is the per-admin inbox.
package notification

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/registrar/core"
)

type Type string

const (
	TypeEnrollment Type = "ENROLLMENT"
	TypeSystem     Type = "SYSTEM"
	TypeAlert      Type = "ALERT"
)

var ErrNotFound = core.NewNotFoundError("notification", "")

type Notification struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"userId" db:"user_id"`
	Type         Type      `json:"type" db:"type"`
	Title        string    `json:"title" db:"title"`
	Message      string    `json:"message" db:"message"`
	StudentID    *string   `json:"studentId" db:"student_id"`
	EnrollmentID *string   `json:"enrollmentId" db:"enrollment_id"`
	IsRead       bool      `json:"isRead" db:"is_read"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

type NewNotification struct {
	Type      Type    `json:"type" validate:"required,oneof=ENROLLMENT SYSTEM ALERT"`
	Title     string  `json:"title" validate:"required,max=200"`
	Message   string  `json:"message" validate:"required"`
	StudentID *string `json:"studentId"`
}

func (nn *NewNotification) Validate(validate *validator.Validate) error {
	nn.Title = core.CleanString(nn.Title)
	nn.Message = core.CleanString(nn.Message)
	nn.StudentID = core.CleanStringPtr(nn.StudentID)
	return validate.Struct(nn)
}

type UpdateNotification struct {
	IsRead *bool `json:"isRead" validate:"required"`
}

type QueryFilter struct {
	UserID string `query:"-"`
	Type   Type   `query:"type"`
	IsRead *bool  `query:"isRead"`
}

type Inbox struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
}

// Notice is a message for every active admin.
type Notice struct {
	Type         Type
	Title        string
	Message      string
	StudentID    string
	EnrollmentID string
}

type Repository interface {
	CreateNotifications(ctx context.Context, ns ...Notification) ([]Notification, error)
	GetNotification(ctx context.Context, id string) (Notification, error)
	// QueryNotifications returns the newest first.
	QueryNotifications(ctx context.Context, filter QueryFilter) ([]Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	UpdateNotification(ctx context.Context, n Notification) (Notification, error)
	DeleteNotification(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	DeleteByStudent(ctx context.Context, studentID string, typ Type) (int, error)
	// RewriteByStudent turns the student's notifications of type from into the given ones.
	RewriteByStudent(ctx context.Context, studentID string, from Type, to Type, title, message string) (int, error)
}
