package echoapi_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/registrar/apps/api/echo"
	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/recyclebin"
	"github.com/trezcool/registrar/core/remark"
	"github.com/trezcool/registrar/services/metrics"
)

func Test_recycleBinApi(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	registrarToken := getToken(t, e, e.registrar)
	ownerToken := getToken(t, e, e.owner)

	sec := e.CreateSection(t, "Narra", "Grade 5")
	rmk, err := e.Remarks.Create(ctx, remark.NewRemark{Label: "Scholar"})
	require.NoError(t, err)

	e.run(t, []httpTest{
		{
			name: "entity required", method: http.MethodPost, path: "/api/recycle-bin", token: registrarToken,
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown entity", method: http.MethodPost, path: "/api/recycle-bin", token: registrarToken,
			body: marchallObj(t, TrashRequest{EntityType: recyclebin.EntitySection, EntityID: "nope"}), wantCode: http.StatusNotFound,
		},
		{
			name: "trash section", method: http.MethodPost, path: "/api/recycle-bin", token: registrarToken,
			body: marchallObj(t, TrashRequest{EntityType: recyclebin.EntitySection, EntityID: sec.ID}), wantCode: http.StatusNoContent,
		},
		{
			name: "trash remark", method: http.MethodPost, path: "/api/recycle-bin", token: registrarToken,
			body: marchallObj(t, TrashRequest{EntityType: recyclebin.EntityCustomRemark, EntityID: rmk.ID}), wantCode: http.StatusNoContent,
		},
	})

	var items []recyclebin.Item
	e.doJSON(t, http.MethodGet, "/api/recycle-bin", registrarToken, nil, http.StatusOK, &items)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, recyclebin.Retention, it.PermanentDeleteAt.Sub(it.DeletedAt))
	}

	e.doJSON(t, http.MethodGet, "/api/recycle-bin?search=narr", registrarToken, nil, http.StatusOK, &items)
	require.Len(t, items, 1)
	secItem := items[0]

	var got recyclebin.Item
	e.doJSON(t, http.MethodGet, "/api/recycle-bin/"+secItem.ID, registrarToken, nil, http.StatusOK, &got)
	var snap map[string]interface{}
	require.NoError(t, got.Decode(&snap))
	assert.Equal(t, "Narra", snap["name"])

	e.run(t, []httpTest{
		{name: "purge needs owner", method: http.MethodDelete, path: "/api/recycle-bin/" + secItem.ID, token: registrarToken, wantCode: http.StatusForbidden},
		{name: "restore", method: http.MethodPatch, path: "/api/recycle-bin/" + secItem.ID, token: registrarToken},
		{name: "restored", path: "/api/sections/" + sec.ID, token: registrarToken},
		{name: "restore twice", method: http.MethodPatch, path: "/api/recycle-bin/" + secItem.ID, token: registrarToken, wantCode: http.StatusNotFound},
		{name: "nothing expired", method: http.MethodDelete, path: "/api/recycle-bin", token: ownerToken, wantData: marchallObj(t, PurgeResponse{})},
	})

	e.doJSON(t, http.MethodGet, "/api/recycle-bin", registrarToken, nil, http.StatusOK, &items)
	require.Len(t, items, 1)
	e.run(t, []httpTest{
		{name: "purge", method: http.MethodDelete, path: "/api/recycle-bin/" + items[0].ID, token: ownerToken, wantCode: http.StatusNoContent},
		{name: "empty", path: "/api/recycle-bin", token: registrarToken, wantData: []byte(`[]`)},
	})
}

func Test_cronApi(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	m := metrics.New()
	srv := NewServer(ServerDeps{Conf: e.Conf, App: e.Container, Metrics: m, DisableReqLogs: true})

	for _, label := range []string{"A", "B"} {
		rmk, err := e.Remarks.Create(ctx, remark.NewRemark{Label: label})
		require.NoError(t, err)
		require.NoError(t, e.RecycleBin.Trash(ctx, recyclebin.EntityCustomRemark, rmk.ID, ""))
	}

	path := "/api/cron/cleanup-recycle-bin"
	cron := func(token string) *httptest.ResponseRecorder {
		req, rec := newAuthRequest(http.MethodGet, path, token)
		srv.ServeHTTP(rec, req)
		return rec
	}

	tests := []httpTest{
		{name: "no secret", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"})},
		{name: "wrong secret", token: "nope", wantCode: http.StatusUnauthorized},
		{name: "a user token is not enough", token: getToken(t, e, e.owner), wantCode: http.StatusUnauthorized},
		{name: "nothing expired", token: "cron-secret", wantCode: http.StatusOK, wantData: marchallObj(t, PurgeResponse{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, cron(tt.token))
		})
	}

	t.Run("expired", func(t *testing.T) {
		origNow := core.NowFunc
		t.Cleanup(func() { core.NowFunc = origNow })
		core.NowFunc = func() time.Time { return time.Now().UTC().Add(recyclebin.Retention + time.Minute) }

		tt := httpTest{token: "cron-secret", wantCode: http.StatusOK, wantData: marchallObj(t, PurgeResponse{Deleted: 2})}
		checkCodeAndData(t, tt, cron(tt.token))

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		body, err := io.ReadAll(rec.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `registrar_recycle_bin_purged_total{trigger="expired"} 2`)
	})

	t.Run("disabled without a secret", func(t *testing.T) {
		conf := *e.Conf
		conf.CronSecret = ""
		srv := NewServer(ServerDeps{Conf: &conf, App: e.Container, DisableReqLogs: true})
		req, rec := newAuthRequest(http.MethodGet, path, "")
		srv.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})}, rec)
	})
}
