package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/trezcool/registrar/apps/api/echo"
	"github.com/trezcool/registrar/core/user"
	testutil "github.com/trezcool/registrar/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// env is a running API on an in-memory application, with one admin per role.
type env struct {
	*testutil.App
	srv       Server
	owner     user.User
	registrar user.User
	cashier   user.User
	viewer    user.User
}

func setup(t *testing.T) *env {
	app := testutil.NewApp(t)
	e := &env{
		App:       app,
		srv:       NewServer(ServerDeps{Conf: app.Conf, App: app.Container, DisableReqLogs: true}),
		owner:     testutil.CreateUser(t, app.Repos.Users, "Owner", "owner", "owner@school.test", "", []string{user.RoleAdmin, user.RoleAdminOwner}, true),
		registrar: testutil.CreateUser(t, app.Repos.Users, "Registrar", "registrar", "registrar@school.test", "", []string{user.RoleAdmin, user.RoleAdminRegistrar}, true),
		cashier:   testutil.CreateUser(t, app.Repos.Users, "Cashier", "cashier", "cashier@school.test", "", []string{user.RoleAdmin, user.RoleAdminCashier}, true),
		viewer:    testutil.CreateUser(t, app.Repos.Users, "Viewer", "viewer", "viewer@school.test", "", []string{user.RoleAdmin}, true),
	}
	return e
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// do serves one request and returns the recorder.
func (e *env) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	e.srv.ServeHTTP(rec, req)
	return rec
}

// doJSON serves one request, checks the status code and decodes the body into v.
func (e *env) doJSON(t *testing.T, method, path, token string, body interface{}, wantCode int, v interface{}) {
	t.Helper()
	var data []byte
	if body != nil {
		data = marchallObj(t, body)
	}
	rec := e.do(method, path, token, data)
	require.Equal(t, wantCode, rec.Code, rec.Body.String())
	if v != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
	}
}

func (e *env) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func getToken(t *testing.T, e *env, usr user.User) string {
	claims := GetUserClaims(usr, e.Conf)
	token, err := GenerateToken(claims, e.Conf)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

// checkCodeAndData compares the body only when wantData is set.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
