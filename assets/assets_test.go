package assets_test

import (
	"io/fs"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/assets"
	"github.com/trezcool/registrar/core"
)

func TestFS_includesLayouts(t *testing.T) {
	for _, name := range []string{"_base.txt", "_base.gohtml"} {
		_, err := fs.Stat(assets.FS, assets.EmailTemplatesDir+"/"+name)
		assert.NoError(t, err, name)
	}
}

func TestFS_emailTemplates(t *testing.T) {
	require.NoError(t, core.ParseEmailTemplates(assets.FS, assets.EmailTemplatesDir, true))

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: "Ada", Address: "ada@example.com"}},
		TemplateName: "enrollment_pending",
		TemplateData: map[string]string{
			"RecipientName": "Ada",
			"Message":       "Juan Luna is pending enrollment in Grade 5.",
			"StudentID":     "42",
		},
	}
	msg.SetFrontendBaseURL("https://school.test")
	require.NoError(t, msg.Render())

	assert.Contains(t, msg.TextContent, "Hello Ada,")
	assert.Contains(t, msg.TextContent, "https://school.test/students/42")
	assert.Contains(t, msg.TextContent, "Registrar", "rendered inside the base layout")
	assert.Contains(t, msg.HTMLContent, "https://school.test/students/42")
}
