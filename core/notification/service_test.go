package notification_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/notification"
	"github.com/trezcool/registrar/core/user"
	testutil "github.com/trezcool/registrar/tests"
)

func TestNotifyAdmins(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	reg := testutil.CreateUser(t, app.Repos.Users, "Reg", "registrar", "reg@school.test", "", []string{user.RoleAdminRegistrar}, true)
	cash := testutil.CreateUser(t, app.Repos.Users, "Cash", "cashier", "", "", []string{user.RoleAdminCashier}, true)
	testutil.CreateUser(t, app.Repos.Users, "Gone", "gone", "gone@school.test", "", []string{user.RoleAdmin}, false)

	notice := notification.Notice{
		Type:      notification.TypeEnrollment,
		Title:     "Pending enrollment",
		Message:   "Jane Doe is pending enrollment",
		StudentID: "s-1",
	}

	t.Run("inbox only", func(t *testing.T) {
		n, err := app.Notifications.NotifyAdmins(ctx, notice)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Empty(t, app.Mail.Messages())

		inbox, err := app.Notifications.List(ctx, notification.QueryFilter{UserID: cash.ID})
		require.NoError(t, err)
		require.Len(t, inbox.Notifications, 1)
		assert.Equal(t, 1, inbox.UnreadCount)
		assert.Equal(t, "s-1", core.StringValue(inbox.Notifications[0].StudentID))
	})

	t.Run("with email", func(t *testing.T) {
		conf := core.NewTestConfig()
		conf.NotifyByEmail = true
		svc := notification.NewService(app.Repos.Notifications, app.Users, app.Mail, conf)

		_, err := svc.NotifyAdmins(ctx, notice)
		require.NoError(t, err)

		// admins without an address get no mail
		msgs := app.Mail.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, reg.Email, msgs[0].To[0].Address)
		assert.Contains(t, msgs[0].HTMLContent, "Jane Doe is pending enrollment")
	})

	t.Run("clear enrollment", func(t *testing.T) {
		n, err := app.Notifications.ClearEnrollment(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})
}

func TestNotifyAdmins_mailAfterCommit(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	reg := testutil.CreateUser(t, app.Repos.Users, "Reg", "registrar", "reg@school.test", "", []string{user.RoleAdminRegistrar}, true)

	conf := core.NewTestConfig()
	conf.NotifyByEmail = true
	svc := notification.NewService(app.Repos.Notifications, app.Users, app.Mail, conf)
	notice := notification.Notice{Type: notification.TypeEnrollment, Title: "Pending enrollment", Message: "Juan Luna is pending enrollment"}

	failed := errors.New("enrollment failed")
	err := app.Repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := svc.NotifyAdmins(ctx, notice)
		require.NoError(t, err)
		return failed
	})
	require.Equal(t, failed, err)
	assert.Empty(t, app.Mail.Messages(), "no mail for a rolled back transaction")
	inbox, err := svc.List(ctx, notification.QueryFilter{UserID: reg.ID})
	require.NoError(t, err)
	assert.Empty(t, inbox.Notifications)

	err = app.Repos.Tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := svc.NotifyAdmins(ctx, notice)
		require.NoError(t, err)
		assert.Empty(t, app.Mail.Messages(), "held back until commit")
		return nil
	})
	require.NoError(t, err)
	msgs := app.Mail.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, reg.Email, msgs[0].To[0].Address)
}

func TestMailReport(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	reg := testutil.CreateUser(t, app.Repos.Users, "Reg", "registrar", "reg@school.test", "", []string{user.RoleAdminRegistrar}, true)
	report := func() notification.Report {
		return notification.Report{
			Subject:  "Student import: 1 row(s) rejected",
			Body:     "The rejected rows are attached.",
			Filename: "import-errors.csv",
			Content:  strings.NewReader("Row,Error\n3,invalid date\n"),
		}
	}

	require.NoError(t, app.Notifications.MailReport(ctx, reg, report()))
	assert.Empty(t, app.Mail.Messages(), "e-mails disabled")

	conf := core.NewTestConfig()
	conf.NotifyByEmail = true
	svc := notification.NewService(app.Repos.Notifications, app.Users, app.Mail, conf)

	require.NoError(t, svc.MailReport(ctx, user.User{Name: "No address"}, report()))
	assert.Empty(t, app.Mail.Messages())

	require.NoError(t, svc.MailReport(ctx, reg, report()))
	msgs := app.Mail.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, reg.Email, msgs[0].To[0].Address)
	assert.Contains(t, msgs[0].TextContent, "The rejected rows are attached.")
	require.Len(t, msgs[0].Attachments, 1)
	at := msgs[0].Attachments[0]
	assert.Equal(t, "import-errors.csv", at.Filename)
	assert.Equal(t, "text/csv", at.ContentType)
	content, err := base64.StdEncoding.DecodeString(at.Content.String())
	require.NoError(t, err)
	assert.Equal(t, "Row,Error\n3,invalid date\n", string(content))
}

func TestInbox(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	me := testutil.CreateUser(t, app.Repos.Users, "Me", "itsme", "", "", []string{user.RoleAdmin}, true)
	other := testutil.CreateUser(t, app.Repos.Users, "Other", "other", "", "", []string{user.RoleAdmin}, true)

	first, err := app.Notifications.Create(ctx, me.ID, notification.NewNotification{Type: notification.TypeSystem, Title: "one", Message: "m"})
	require.NoError(t, err)
	_, err = app.Notifications.Create(ctx, me.ID, notification.NewNotification{Type: notification.TypeAlert, Title: "two", Message: "m"})
	require.NoError(t, err)

	_, err = app.Notifications.Get(ctx, other.ID, first.ID)
	assert.True(t, core.IsNotFound(err), "someone else's notification")

	n, err := app.Notifications.SetRead(ctx, me.ID, first.ID, true)
	require.NoError(t, err)
	assert.True(t, n.IsRead)

	unread := false
	inbox, err := app.Notifications.List(ctx, notification.QueryFilter{UserID: me.ID, IsRead: &unread})
	require.NoError(t, err)
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, "two", inbox.Notifications[0].Title)
	assert.Equal(t, 1, inbox.UnreadCount)

	marked, err := app.Notifications.MarkAllRead(ctx, me.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	require.NoError(t, app.Notifications.Delete(ctx, me.ID, first.ID))
	inbox, err = app.Notifications.List(ctx, notification.QueryFilter{UserID: me.ID})
	require.NoError(t, err)
	assert.Len(t, inbox.Notifications, 1)
	assert.Zero(t, inbox.UnreadCount)
}
