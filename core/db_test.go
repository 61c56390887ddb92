package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/registrar/core"
)

func TestAfterCommit(t *testing.T) {
	var calls []string
	core.AfterCommit(context.Background(), func() { calls = append(calls, "now") })
	assert.Equal(t, []string{"now"}, calls, "runs right away outside a transaction")

	ctx, afterCommit := core.WithAfterCommit(context.Background())
	core.AfterCommit(ctx, func() { calls = append(calls, "first") })
	core.AfterCommit(ctx, func() { calls = append(calls, "second") })
	assert.Len(t, calls, 1)

	afterCommit()
	assert.Equal(t, []string{"now", "first", "second"}, calls)
}
