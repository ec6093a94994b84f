package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compliancetracker/compliancetracker/internal/config"
	"github.com/compliancetracker/compliancetracker/internal/database"
	"github.com/compliancetracker/compliancetracker/internal/model"
	"github.com/compliancetracker/compliancetracker/internal/service"
	"github.com/compliancetracker/compliancetracker/pkg/auth"
	"github.com/compliancetracker/compliancetracker/web"
)

const cookieName = "ctrack_session"

type testApp struct {
	engine   *gin.Engine
	tokens   *auth.TokenManager
	org      *model.Organization
	alice    *model.User
	outsider *model.User
	question *model.TaskQuestion
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	require.NoError(t, database.Init(config.DatabaseConfig{
		Driver:   "sqlite",
		SQLite:   config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "router.sqlite3")},
		LogLevel: "silent",
	}))
	t.Cleanup(func() { _ = database.Close() })
	db := database.GetDB()
	ctx := context.Background()

	accounts := service.NewAccountService(db)
	discussions := service.NewDiscussionService(db)
	notifications := service.NewNotificationService(db)
	itsystems := service.NewITSystemsService(db, nil)
	tmpl, err := web.Templates()
	require.NoError(t, err)

	app := &testApp{tokens: auth.NewTokenManager("test-secret", time.Hour)}
	app.engine = SetupRouter(Deps{
		Accounts:      accounts,
		Discussions:   discussions,
		Comments:      service.NewCommentService(db, discussions, notifications),
		Invitations:   service.NewInvitationService(db, discussions, notifications),
		Notifications: notifications,
		ITSystems:     itsystems,
		Compliance:    service.NewComplianceService(itsystems, config.AgentServiceConfig{DefaultName: "Wazuh"}, nil),
		Tokens:        app.tokens,
		Templates:     tmpl,
		CookieName:    cookieName,
		Mode:          gin.TestMode,
	})

	app.org = &model.Organization{Name: "Acme", Subdomain: "acme"}
	require.NoError(t, db.Create(app.org).Error)
	app.alice, err = accounts.CreateUser(ctx, "alice", "alice@example.com", "Alice", "pw-alice")
	require.NoError(t, err)
	app.outsider, err = accounts.CreateUser(ctx, "mallory", "", "", "pw-mallory")
	require.NoError(t, err)
	require.NoError(t, accounts.AddMember(ctx, app.org.ID, app.alice.ID, "", true))

	project := &model.Project{OrganizationID: app.org.ID, Title: "ISO 27001"}
	require.NoError(t, db.Create(project).Error)
	require.NoError(t, db.Create(&model.ProjectMembership{ProjectID: project.ID, UserID: app.alice.ID, IsAdmin: true}).Error)
	task := &model.Task{ProjectID: project.ID, Title: "Backups", EditorID: app.alice.ID}
	require.NoError(t, db.Create(task).Error)
	app.question = &model.TaskQuestion{TaskID: task.ID, Key: "offsite", Title: "Are backups stored offsite?"}
	require.NoError(t, db.Create(app.question).Error)
	return app
}

func (a *testApp) token(t *testing.T, u *model.User) string {
	tok, err := a.tokens.Generate(u.ID, u.Username)
	require.NoError(t, err)
	return tok
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SUCCESS", decode(t, w)["code"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestLoginGate(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/notifications", "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/accounts/login?next="+url.QueryEscape("/notifications"), w.Header().Get("Location"))

	w = app.do(t, http.MethodGet, "/api/v1/itsystems/systems", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, w)["code"])

	w = app.do(t, http.MethodGet, "/api/v1/itsystems/systems", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(t, http.MethodGet, "/api/v1/itsystems/systems", app.token(t, app.outsider), nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "users without an organization are rejected")

	w = app.do(t, http.MethodGet, "/api/v1/itsystems/systems", app.token(t, app.alice), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFormLoginSetsCookie(t *testing.T) {
	app := newTestApp(t)

	form := url.Values{"username": {"alice"}, "password": {"pw-alice"}, "next": {"/notifications"}}
	req := httptest.NewRequest(http.MethodPost, "/accounts/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	app.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/notifications", w.Header().Get("Location"))

	var session *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == cookieName {
			session = ck
		}
	}
	require.NotNil(t, session)

	req = httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.AddCookie(session)
	w = httptest.NewRecorder()
	app.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "You have no notifications.")

	form.Set("password", "wrong")
	req = httptest.NewRequest(http.MethodPost, "/accounts/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	app.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "incorrect")
}

func TestLoginAPI(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodPost, "/api/v1/accounts/login", "", map[string]string{"username": "alice", "password": "pw-alice"})
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	token := data["token"].(string)

	w = app.do(t, http.MethodGet, "/api/v1/notifications", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodPost, "/api/v1/accounts/login", "", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiscussionFlow(t *testing.T) {
	app := newTestApp(t)
	token := app.token(t, app.alice)

	req := httptest.NewRequest(http.MethodGet, "/questions/"+itoa(app.question.ID)+"/discussion", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	app.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/discussions/"))

	w = app.do(t, http.MethodPost, "/api/v1"+location+"/comments", token, map[string]interface{}{
		"text":   "Offsite copies are **weekly**",
		"emojis": []string{"tada"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "editor", view["user_role"])
	assert.Contains(t, view["text_rendered"], "<strong>weekly</strong>")

	w = app.do(t, http.MethodPost, "/api/v1"+location+"/comments", token, map[string]interface{}{
		"text":   "bad emojis",
		"emojis": []string{"a,b"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodGet, "/api/v1"+location, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	payload := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "Are backups stored offsite?", payload["title"])
	assert.Equal(t, true, payload["is_participant"])
	assert.Len(t, payload["comments"], 1)

	req = httptest.NewRequest(http.MethodGet, location, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	app.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<strong>weekly</strong>")

	w = app.do(t, http.MethodGet, "/api/v1/discussions/999", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRevokeInvitation(t *testing.T) {
	app := newTestApp(t)
	token := app.token(t, app.alice)

	post := func(path string, form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		app.engine.ServeHTTP(w, req)
		return w
	}

	req := httptest.NewRequest(http.MethodGet, "/questions/"+itoa(app.question.ID)+"/discussion", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	app.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")

	w = post(location+"/invite", url.Values{"to_email": {"guest@example.com"}})
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())

	var inv model.Invitation
	require.NoError(t, database.GetDB().Where("to_email = ?", "guest@example.com").First(&inv).Error)

	w = post("/invitations/"+itoa(inv.ID)+"/revoke", url.Values{"next": {location}})
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, location, w.Header().Get("Location"))

	require.NoError(t, database.GetDB().First(&inv, inv.ID).Error)
	assert.NotNil(t, inv.RevokedAt)

	w = post("/invitations/"+itoa(inv.ID)+"/revoke", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "already revoked")

	w = post("/invitations/abc/revoke", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAutocompletesAPI(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	viewer, err := service.NewAccountService(database.GetDB()).CreateUser(ctx, "victor", "", "Victor", "pw-victor")
	require.NoError(t, err)
	require.NoError(t, service.NewAccountService(database.GetDB()).AddMember(ctx, app.org.ID, viewer.ID, "", false))

	req := httptest.NewRequest(http.MethodGet, "/questions/"+itoa(app.question.ID)+"/discussion", nil)
	req.Header.Set("Authorization", "Bearer "+app.token(t, app.alice))
	w := httptest.NewRecorder()
	app.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code)
	location := w.Header().Get("Location")

	w = app.do(t, http.MethodGet, "/api/v1"+location+"/autocompletes", app.token(t, app.alice), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ac := decode(t, w)["data"].(map[string]interface{})
	assert.Len(t, ac["@"], 1)

	w = app.do(t, http.MethodGet, "/api/v1"+location+"/autocompletes", app.token(t, viewer), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []interface{}{}, decode(t, w)["data"])
}

func TestITSystemsLocations(t *testing.T) {
	app := newTestApp(t)
	token := app.token(t, app.alice)

	w := app.do(t, http.MethodPost, "/api/v1/itsystems/systems", token, map[string]string{"name": "ERP"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sysID := uint(decode(t, w)["data"].(map[string]interface{})["id"].(float64))
	assert.Equal(t, "/api/v1/itsystems/systems/"+itoa(sysID)+"/hosts", w.Header().Get("Location"))

	w = app.do(t, http.MethodPost, "/api/v1/itsystems/systems", token, map[string]string{"name": "ERP"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = app.do(t, http.MethodPost, "/api/v1/itsystems/hosts", token, map[string]interface{}{"name": "erp-db", "system_instance_id": sysID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	hostID := uint(decode(t, w)["data"].(map[string]interface{})["id"].(float64))
	assert.Equal(t, "/api/v1/itsystems/systems/"+itoa(sysID)+"/hosts", w.Header().Get("Location"))

	w = app.do(t, http.MethodPost, "/api/v1/itsystems/agents", token, map[string]interface{}{"agent_id": "007", "host_instance_id": hostID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "/api/v1/itsystems/systems/"+itoa(sysID)+"/hosts", w.Header().Get("Location"))

	w = app.do(t, http.MethodPost, "/api/v1/itsystems/components", token, map[string]interface{}{"name": "PostgreSQL"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/v1/itsystems/components", w.Header().Get("Location"))

	w = app.do(t, http.MethodPost, "/api/v1/itsystems/hosts", token, map[string]interface{}{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodGet, "/api/v1/itsystems/hosts/"+itoa(hostID)+"/compliance", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, false, report["available"])
	assert.Equal(t, "Agent Service not defined or not supported.", report["agent_service_data_pretty"])

	w = app.do(t, http.MethodPost, "/api/v1/itsystems/hosts/"+itoa(hostID)+"/probe", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "host has no address")

	w = app.do(t, http.MethodDelete, "/api/v1/itsystems/systems/"+itoa(sysID), token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestNoRoute(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w)["code"])
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
