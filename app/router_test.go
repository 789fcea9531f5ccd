package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"bitwise74/accounts-api/db"
	"bitwise74/accounts-api/internal"
	"bitwise74/accounts-api/internal/metrics"
	"bitwise74/accounts-api/internal/provider"
	"bitwise74/accounts-api/internal/service"
	"bitwise74/accounts-api/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "testuser@test.com"
	testPassword = "test1234test"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProvider struct {
	ids map[string]*provider.Identity
}

func (f *fakeProvider) Name() string { return "facebook" }

func (f *fakeProvider) FetchIdentity(_ context.Context, token string) (*provider.Identity, error) {
	id, ok := f.ids[token]
	if !ok {
		return nil, provider.ErrInvalidProviderToken
	}

	return id, nil
}

type testApp struct {
	router *gin.Engine
	d      *internal.Deps
	outbox *service.Outbox
	fb     *fakeProvider
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	conn, err := db.New(db.Options{DSN: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)

	outbox := &service.Outbox{}
	fb := &fakeProvider{ids: map[string]*provider.Identity{}}
	m := metrics.NewCollector()

	accounts, err := service.NewAccounts(service.Config{
		DB:        conn,
		Argon:     security.Fast(),
		Mailer:    outbox,
		Providers: provider.NewRegistry(fb),
		Metrics:   m,
		Options: service.Options{
			BaseURL:   "http://testserver",
			SecretKey: "test-secret",
		},
	})
	require.NoError(t, err)

	d := &internal.Deps{
		DB:        conn,
		Accounts:  accounts,
		Metrics:   m,
		StaticURL: "/static/",
	}

	router, err := NewRouter(t.Context(), d, Options{ServeStatic: true})
	require.NoError(t, err)

	return &testApp{router: router, d: d, outbox: outbox, fb: fb}
}

func (a *testApp) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)

		r = httptest.NewRequest(method, path, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}

	if token != "" {
		r.Header.Set("Authorization", "Token "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, r)

	return w
}

func (a *testApp) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, r)

	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())

	return out
}

var (
	confirmPathRe = regexp.MustCompile(`http://testserver(/auth/confirm-email/[0-9a-f]+/)`)
	resetPathRe   = regexp.MustCompile(`http://testserver/auth/reset/([A-Za-z0-9_-]+)/([A-Za-z0-9_.-]+)/`)
)

func (a *testApp) lastMatch(t *testing.T, re *regexp.Regexp) []string {
	t.Helper()

	m, ok := a.outbox.Last()
	require.True(t, ok, "no mail was sent")

	match := re.FindStringSubmatch(m.Text)
	require.NotNil(t, match, "no link in %q", m.Text)

	return match
}

// signup registers, confirms through the HTML page and logs in
func (a *testApp) signup(t *testing.T, email string) string {
	t.Helper()

	w := a.do(t, http.MethodPost, "/api/auth/registration", gin.H{
		"email": email, "password1": testPassword, "password2": testPassword,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, a.lastMatch(t, confirmPathRe)[1], nil, "")
	require.Equal(t, http.StatusFound, w.Code)

	w = a.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": email, "password": testPassword}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	return decode(t, w)["key"].(string)
}

func TestRegistrationFlow(t *testing.T) {
	a := newTestApp(t)

	w := a.do(t, http.MethodPost, "/api/auth/registration", gin.H{
		"email": testEmail, "password1": testPassword, "password2": testPassword,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, service.MsgVerificationSent, decode(t, w)["detail"])

	w = a.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": testEmail, "password": testPassword}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{service.MsgEmailNotVerified}, decode(t, w)["non_field_errors"])

	w = a.do(t, http.MethodGet, a.lastMatch(t, confirmPathRe)[1], nil, "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth/email/activation/done/", w.Header().Get("Location"))

	w = a.do(t, http.MethodGet, "/auth/email/activation/done/", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "You can now use your account.")

	w = a.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": testEmail, "password": testPassword}, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Len(t, body["key"], 40)
	assert.Contains(t, body["user"], "uuid")
	assert.Contains(t, body["user"], "name")
}

func TestRegistrationValidation(t *testing.T) {
	a := newTestApp(t)

	w := a.do(t, http.MethodPost, "/api/auth/registration", gin.H{"email": testEmail}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, []any{service.MsgFieldRequired}, body["password1"])
	assert.Equal(t, []any{service.MsgFieldRequired}, body["password2"])

	w = a.do(t, http.MethodPost, "/api/auth/registration", gin.H{
		"email": testEmail, "password1": "short", "password2": "short",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{service.MsgPasswordTooShort}, decode(t, w)["password1"])

	w = a.do(t, http.MethodPost, "/api/auth/registration", gin.H{
		"email": testEmail, "password1": testPassword, "password2": testPassword + "x",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{service.MsgPasswordMismatch}, decode(t, w)["non_field_errors"])

	assert.Empty(t, a.outbox.Sent())
}

func TestMalformedBody(t *testing.T) {
	a := newTestApp(t)

	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{not json"))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyEmailAPI(t *testing.T) {
	a := newTestApp(t)

	w := a.do(t, http.MethodPost, "/api/auth/registration/verify-email", gin.H{}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{service.MsgFieldRequired}, decode(t, w)["key"])

	w = a.do(t, http.MethodPost, "/api/auth/registration/verify-email", gin.H{"key": "nope"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{service.MsgInvalidValue}, decode(t, w)["key"])

	a.do(t, http.MethodPost, "/api/auth/registration", gin.H{
		"email": testEmail, "password1": testPassword, "password2": testPassword,
	}, "")
	key := strings.TrimSuffix(strings.TrimPrefix(a.lastMatch(t, confirmPathRe)[1], "/auth/confirm-email/"), "/")

	w = a.do(t, http.MethodPost, "/api/auth/registration/verify-email", gin.H{"key": key}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["detail"])

	w = a.do(t, http.MethodPost, "/api/auth/registration/verify-email", gin.H{"key": key}, "")
	require.Equal(t, http.StatusBadRequest, w.Code, "keys are single use")
	assert.Equal(t, []any{service.MsgInvalidValue}, decode(t, w)["key"])

	w = a.do(t, http.MethodGet, "/auth/confirm-email/"+key+"/", nil, "")
	require.Equal(t, http.StatusOK, w.Code, "used keys render the invalid page")
	assert.Contains(t, w.Body.String(), service.MsgInvalidKey)
}

func TestResendEmailIsUniform(t *testing.T) {
	a := newTestApp(t)

	w := a.do(t, http.MethodPost, "/api/auth/registration/resend-email", gin.H{"email": "ghost@test.com"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, a.outbox.Sent())
}

func TestTokenAuthentication(t *testing.T) {
	a := newTestApp(t)
	token := a.signup(t, testEmail)

	w := a.do(t, http.MethodGet, "/api/auth/user", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token", w.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "Authentication credentials were not provided.", decode(t, w)["detail"])

	w = a.do(t, http.MethodGet, "/api/auth/user", nil, "bogus")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid token.", decode(t, w)["detail"])

	w = a.do(t, http.MethodPatch, "/api/auth/user", gin.H{"name": "Tester", "uuid": "ignored"}, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Tester", decode(t, w)["name"])

	w = a.do(t, http.MethodGet, "/api/auth/user", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Tester", body["name"])
	assert.NotEmpty(t, body["uuid"])

	w = a.do(t, http.MethodPut, "/api/auth/user", gin.H{"name": strings.Repeat("a", 256)}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{service.MsgFieldTooLong}, decode(t, w)["name"])

	w = a.do(t, http.MethodPost, "/api/auth/logout", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.MsgLoggedOut, decode(t, w)["detail"])

	w = a.do(t, http.MethodGet, "/api/auth/user", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/api/auth/logout", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPasswordChange(t *testing.T) {
	a := newTestApp(t)
	token := a.signup(t, testEmail)

	w := a.do(t, http.MethodPost, "/api/auth/password/change", gin.H{
		"old_password": "wrong-password", "new_password1": "brand new pass", "new_password2": "brand new pass",
	}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{service.MsgInvalidOldPassword}, decode(t, w)["old_password"])

	w = a.do(t, http.MethodPost, "/api/auth/password/change", gin.H{
		"old_password": testPassword, "new_password1": "brand new pass", "new_password2": "brand new pass",
	}, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.MsgPasswordChanged, decode(t, w)["detail"])

	w = a.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": testEmail, "password": "brand new pass"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPasswordResetAPI(t *testing.T) {
	a := newTestApp(t)
	a.signup(t, testEmail)

	w := a.do(t, http.MethodPost, "/api/auth/password/reset", gin.H{"email": "ghost@test.com"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.MsgResetSent, decode(t, w)["detail"])
	sent := len(a.outbox.Sent())

	w = a.do(t, http.MethodPost, "/api/auth/password/reset", gin.H{"email": testEmail}, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, a.outbox.Sent(), sent+1)

	link := a.lastMatch(t, resetPathRe)
	path := "/api/auth/password/reset/confirm/" + link[1] + "/" + link[2]
	newPass := gin.H{"new_password1": "reset password 1", "new_password2": "reset password 1"}

	w = a.do(t, http.MethodPost, path, newPass, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, service.MsgResetDone, decode(t, w)["detail"])

	w = a.do(t, http.MethodPost, path, newPass, "")
	require.Equal(t, http.StatusBadRequest, w.Code, "reset links work once")
	assert.Equal(t, []any{service.MsgInvalidValue}, decode(t, w)["token"])

	w = a.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": testEmail, "password": "reset password 1"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPasswordResetPages(t *testing.T) {
	a := newTestApp(t)
	a.signup(t, testEmail)

	a.do(t, http.MethodPost, "/api/auth/password/reset", gin.H{"email": testEmail}, "")
	link := a.lastMatch(t, resetPathRe)
	path := "/auth/reset/" + link[1] + "/" + link[2] + "/"

	w := a.do(t, http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="new_password1"`)
	assert.Contains(t, w.Body.String(), "/static/css/accounts.css")

	w = a.postForm(path, url.Values{"new_password1": {"reset password 1"}, "new_password2": {"reset password 2"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "The two password fields didn")

	w = a.postForm(path, url.Values{"new_password1": {"reset password 1"}, "new_password2": {"reset password 1"}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth/reset/done/", w.Header().Get("Location"))

	w = a.do(t, http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "The password reset link was invalid")

	w = a.do(t, http.MethodGet, "/auth/reset/done/", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Your password has been set.")
}

func TestSocialRoutes(t *testing.T) {
	a := newTestApp(t)
	a.fb.ids["fb-token"] = &provider.Identity{
		Provider:       "facebook",
		ProviderUserID: "42",
		Email:          "social@test.com",
		Name:           "Social User",
	}

	w := a.do(t, http.MethodPost, "/api/auth/facebook", gin.H{"access_token": "fb-token"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode(t, w)["key"], 40)

	w = a.do(t, http.MethodPost, "/api/auth/facebook", gin.H{"access_token": "bad"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{service.MsgIncorrectValue}, decode(t, w)["non_field_errors"])

	w = a.do(t, http.MethodPost, "/api/auth/twitter", gin.H{"access_token": "fb-token"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	token := a.signup(t, testEmail)
	w = a.do(t, http.MethodPost, "/api/auth/facebook/connect", gin.H{"access_token": "fb-token"}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{service.MsgAlreadyLinked}, decode(t, w)["non_field_errors"])

	w = a.do(t, http.MethodPost, "/api/auth/facebook/connect", gin.H{"access_token": "fb-token"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	a := newTestApp(t)
	userToken := a.signup(t, testEmail)

	_, err := a.d.Accounts.CreateSuperuser(context.Background(), "admin@test.com", testPassword, "Admin")
	require.NoError(t, err)

	w := a.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": "admin@test.com", "password": testPassword}, "")
	require.Equal(t, http.StatusOK, w.Code)
	adminToken := decode(t, w)["key"].(string)

	w = a.do(t, http.MethodGet, "/api/admin/users", nil, userToken)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodGet, "/api/admin/users?search=testuser", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w)
	assert.EqualValues(t, 1, page["count"])

	results := page["results"].([]any)
	require.Len(t, results, 1)
	target := results[0].(map[string]any)
	assert.Equal(t, testEmail, target["email"])
	assert.Equal(t, true, target["verified"])

	w = a.do(t, http.MethodGet, "/api/admin/users?is_active=maybe", nil, adminToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/admin/users/not-a-uuid", nil, adminToken)
	assert.Equal(t, http.StatusNotFound, w.Code)

	path := "/api/admin/users/" + target["uuid"].(string)

	w = a.do(t, http.MethodPatch, path, gin.H{"is_active": false}, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["is_active"])

	w = a.do(t, http.MethodPatch, path, gin.H{"is_active": true}, adminToken)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodDelete, path, nil, adminToken)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodGet, "/api/auth/user", nil, userToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "removed users lose their token")

	w = a.do(t, http.MethodGet, path, nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["is_removed"])
}

func TestOpsRoutes(t *testing.T) {
	a := newTestApp(t)

	w := a.do(t, http.MethodHead, "/api/heartbeat", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	a.do(t, http.MethodPost, "/api/auth/login", gin.H{"email": testEmail, "password": testPassword}, "")

	w = a.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "accounts_auth_events_total")
	assert.Contains(t, w.Body.String(), `route="/api/auth/login"`)

	w = a.do(t, http.MethodGet, "/static/css/accounts.css", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ".card")
}
