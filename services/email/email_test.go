package emailsvc

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/assets"
	"github.com/trezcool/registrar/core"
)

func testConfig() *core.Config {
	conf := core.NewTestConfig()
	conf.AppName = "Registrar"
	return conf
}

func TestConsoleService_SendMessages(t *testing.T) {
	require.NoError(t, core.ParseEmailTemplates(assets.FS, assets.EmailTemplatesDir, true))

	out := new(bytes.Buffer)
	svc := NewConsoleService(testConfig(), out, core.NewNopLogger())
	svc.sync = true

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: "Jane", Address: "jane@example.com"}},
		Subject:      "New enrollment",
		TemplateName: "enrollment_pending",
		TemplateData: map[string]string{
			"RecipientName": "Jane",
			"Message":       "Juan Dela Cruz was enrolled in Grade 1",
			"StudentID":     "stu-1",
		},
	}
	msg.SetFrontendBaseURL("http://school.test")
	skipped := &core.EmailMessage{Subject: "no recipients", BodyStr: "hello"}

	svc.SendMessages(msg, skipped)

	sent := svc.Messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "Juan Dela Cruz was enrolled in Grade 1")
	assert.Contains(t, sent[0].HTMLContent, "http://school.test/students/stu-1")

	printed := out.String()
	assert.Contains(t, printed, "Subject: [Registrar] New enrollment")
	assert.Contains(t, printed, `To: "Jane" <jane@example.com>`)
}

func TestSendgridService_prepare(t *testing.T) {
	svc := NewSendgridService(testConfig(), core.NewNopLogger())
	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Address: "a@example.com"}},
		Cc:          []mail.Address{{Address: "b@example.com"}},
		Subject:     "Hi",
		TextContent: "plain only",
	})

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Registrar] Hi", m.Personalizations[0].Subject)
	assert.Len(t, m.Personalizations[0].To, 1)
	assert.Len(t, m.Personalizations[0].CC, 1)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/plain", m.Content[0].Type)
}

func TestSendgridService_prepareAttachments(t *testing.T) {
	svc := NewSendgridService(testConfig(), core.NewNopLogger())
	msg := core.EmailMessage{
		To:          []mail.Address{{Address: "a@example.com"}},
		Subject:     "Import report",
		TextContent: "see attached",
	}
	require.NoError(t, msg.Attach(strings.NewReader("row,error\n3,invalid grade\n"), "report.csv", "text/csv"))
	require.NoError(t, msg.Attach(strings.NewReader("plain text"), "notes.txt"))

	m := svc.prepare(msg)
	require.Len(t, m.Attachments, 2)
	assert.Equal(t, "report.csv", m.Attachments[0].Filename)
	assert.Equal(t, "text/csv", m.Attachments[0].Type)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("row,error\n3,invalid grade\n")), m.Attachments[0].Content)
	assert.Equal(t, "text/plain; charset=utf-8", m.Attachments[1].Type, "detected when not given")
}

func TestSendgridService_send(t *testing.T) {
	tests := []struct {
		name      string
		responses []*rest.Response
		errs      []error
		wantOK    bool
		wantCalls int
	}{
		{
			name:      "accepted",
			responses: []*rest.Response{{StatusCode: http.StatusAccepted}},
			errs:      []error{nil},
			wantOK:    true,
			wantCalls: 1,
		},
		{
			name:      "client error is not retried",
			responses: []*rest.Response{{StatusCode: http.StatusBadRequest}},
			errs:      []error{nil},
			wantCalls: 1,
		},
		{
			name:      "server error then success",
			responses: []*rest.Response{{StatusCode: http.StatusBadGateway}, nil, {StatusCode: http.StatusAccepted}},
			errs:      []error{nil, errors.New("connection reset"), nil},
			wantOK:    true,
			wantCalls: 3,
		},
		{
			name:      "gives up",
			responses: []*rest.Response{nil, nil, nil},
			errs:      []error{errors.New("down"), errors.New("down"), errors.New("down")},
			wantCalls: maxAttempts,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var (
				mu    sync.Mutex
				calls int
			)
			svc := NewSendgridService(testConfig(), core.NewNopLogger())
			svc.backoff = 0
			svc.api = func(req rest.Request) (*rest.Response, error) {
				mu.Lock()
				defer mu.Unlock()
				assert.True(t, strings.HasSuffix(req.BaseURL, sendgridEndpoint))
				i := calls
				calls++
				return tc.responses[i], tc.errs[i]
			}

			ok := svc.send(core.EmailMessage{To: []mail.Address{{Address: "a@example.com"}}, TextContent: "x"})
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantCalls, calls)
		})
	}
}
