package cronsvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
)

type purgerMock struct {
	calls int
	n     int
	err   error
}

func (p *purgerMock) PurgeExpired(context.Context, time.Time) (int, error) {
	p.calls++
	return p.n, p.err
}

func TestNewScheduler(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		wantJobs int
		wantErr  bool
	}{
		{name: "disabled", spec: "", wantJobs: 0},
		{name: "daily", spec: "0 3 * * *", wantJobs: 1},
		{name: "descriptor", spec: "@hourly", wantJobs: 1},
		{name: "invalid", spec: "every day", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewScheduler(tc.spec, &purgerMock{}, core.NewNopLogger(), nil)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantJobs, s.Jobs())
		})
	}
}

func TestScheduler_PurgeExpired(t *testing.T) {
	var purged []int
	p := &purgerMock{n: 3}
	s, err := NewScheduler("", p, core.NewNopLogger(), func(n int) { purged = append(purged, n) })
	require.NoError(t, err)

	s.PurgeExpired()
	assert.Equal(t, []int{3}, purged)

	p.err = errors.New("db down")
	s.PurgeExpired()
	assert.Equal(t, 2, p.calls)
	assert.Equal(t, []int{3}, purged, "failed purges are not reported")

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
