package notification

import (
	"context"
	"io"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/user"
)

const enrollmentTemplate = "enrollment_pending"

type adminLister interface {
	ActiveAdmins(ctx context.Context) ([]user.User, error)
}

type Service struct {
	repo            Repository
	admins          adminLister
	mailSvc         core.EmailService
	notifyByEmail   bool
	frontendBaseURL string
}

func NewService(repo Repository, admins adminLister, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:            repo,
		admins:          admins,
		mailSvc:         mailSvc,
		notifyByEmail:   conf.NotifyByEmail,
		frontendBaseURL: conf.FrontendBaseURL,
	}
}

func (svc *Service) List(ctx context.Context, filter QueryFilter) (Inbox, error) {
	ns, err := svc.repo.QueryNotifications(ctx, filter)
	if err != nil {
		return Inbox{}, errors.Wrap(err, "querying notifications")
	}
	unread, err := svc.repo.CountUnread(ctx, filter.UserID)
	if err != nil {
		return Inbox{}, errors.Wrap(err, "counting unread notifications")
	}
	if ns == nil {
		ns = []Notification{}
	}
	return Inbox{Notifications: ns, UnreadCount: unread}, nil
}

func (svc *Service) Create(ctx context.Context, userID string, nn NewNotification) (Notification, error) {
	ns, err := svc.repo.CreateNotifications(ctx, Notification{
		UserID:    userID,
		Type:      nn.Type,
		Title:     nn.Title,
		Message:   nn.Message,
		StudentID: nn.StudentID,
		CreatedAt: core.NowFunc(),
	})
	if err != nil {
		return Notification{}, err
	}
	return ns[0], nil
}

// Get returns the user's notification; someone else's is reported as not found.
func (svc *Service) Get(ctx context.Context, userID, id string) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.UserID != userID {
		return Notification{}, ErrNotFound
	}
	return n, nil
}

func (svc *Service) SetRead(ctx context.Context, userID, id string, read bool) (Notification, error) {
	n, err := svc.Get(ctx, userID, id)
	if err != nil {
		return Notification{}, err
	}
	n.IsRead = read
	return svc.repo.UpdateNotification(ctx, n)
}

func (svc *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := svc.Get(ctx, userID, id); err != nil {
		return err
	}
	return svc.repo.DeleteNotification(ctx, id)
}

func (svc *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return svc.repo.MarkAllRead(ctx, userID)
}

// NotifyAdmins writes the notice to the inbox of every active admin and e-mails them when enabled.
// Within a transaction the e-mails go out once it commits.
func (svc *Service) NotifyAdmins(ctx context.Context, notice Notice) (int, error) {
	admins, err := svc.admins.ActiveAdmins(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "listing active admins")
	}
	if len(admins) == 0 {
		return 0, nil
	}

	var studentID, enrollmentID *string
	if notice.StudentID != "" {
		studentID = &notice.StudentID
	}
	if notice.EnrollmentID != "" {
		enrollmentID = &notice.EnrollmentID
	}

	now := core.NowFunc()
	ns := make([]Notification, 0, len(admins))
	for _, admin := range admins {
		ns = append(ns, Notification{
			UserID:       admin.ID,
			Type:         notice.Type,
			Title:        notice.Title,
			Message:      notice.Message,
			StudentID:    studentID,
			EnrollmentID: enrollmentID,
			CreatedAt:    now,
		})
	}
	if _, err = svc.repo.CreateNotifications(ctx, ns...); err != nil {
		return 0, errors.Wrap(err, "creating notifications")
	}

	if svc.notifyByEmail && svc.mailSvc != nil {
		msgs := svc.emails(admins, notice)
		core.AfterCommit(ctx, func() { svc.mailSvc.SendMessages(msgs...) })
	}
	return len(ns), nil
}

func (svc *Service) emails(admins []user.User, notice Notice) []*core.EmailMessage {
	msgs := make([]*core.EmailMessage, 0, len(admins))
	for _, admin := range admins {
		if admin.Email == "" {
			continue
		}
		msg := &core.EmailMessage{
			To:           []mail.Address{{Name: admin.Name, Address: admin.Email}},
			Subject:      notice.Title,
			TemplateName: enrollmentTemplate,
			TemplateData: map[string]interface{}{
				"RecipientName": admin.Name,
				"Message":       notice.Message,
				"StudentID":     notice.StudentID,
			},
		}
		msg.SetFrontendBaseURL(svc.frontendBaseURL)
		msgs = append(msgs, msg)
	}
	return msgs
}

// Report is a file mailed to a single user.
type Report struct {
	Subject  string
	Body     string
	Filename string
	Content  io.Reader
}

// MailReport e-mails r to usr, with the file attached, when e-mails are enabled and usr has an address.
func (svc *Service) MailReport(ctx context.Context, usr user.User, r Report) error {
	if !svc.notifyByEmail || svc.mailSvc == nil || usr.Email == "" {
		return nil
	}
	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: r.Subject,
		BodyStr: r.Body,
	}
	if err := msg.Attach(r.Content, r.Filename, "text/csv"); err != nil {
		return errors.Wrap(err, "attaching report")
	}
	core.AfterCommit(ctx, func() { svc.mailSvc.SendMessages(msg) })
	return nil
}

// ClearEnrollment removes the student's ENROLLMENT notifications once they are enrolled.
func (svc *Service) ClearEnrollment(ctx context.Context, studentID string) (int, error) {
	return svc.repo.DeleteByStudent(ctx, studentID, TypeEnrollment)
}

// DropEnrollment rewrites the student's ENROLLMENT notifications into alerts.
func (svc *Service) DropEnrollment(ctx context.Context, studentID, title, message string) (int, error) {
	return svc.repo.RewriteByStudent(ctx, studentID, TypeEnrollment, TypeAlert, title, message)
}
