package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/user"
)

func TestRollbarLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewRollbarLogger(log.New(buf, "", 0), core.NewTestConfig())
	assert.False(t, l.enabled)

	usr := user.User{ID: "u1", Username: "cashier"}
	args := l.prepare("payment failed", []interface{}{errors.New("boom"), usr, map[string]interface{}{"studentId": "s1"}})
	assert.Len(t, args, 3, "the user is not forwarded as an argument")

	l.Error("payment failed", errors.New("boom"), usr)
	out := buf.String()
	assert.Contains(t, out, "ERROR: payment failed")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "user: cashier (u1)")
}
