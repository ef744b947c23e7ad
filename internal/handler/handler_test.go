package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/successcugo/ULAS/internal/attendance"
	"github.com/successcugo/ULAS/internal/cache"
	"github.com/successcugo/ULAS/internal/catalog"
	"github.com/successcugo/ULAS/internal/config"
	"github.com/successcugo/ULAS/internal/errs"
	"github.com/successcugo/ULAS/internal/identity"
	"github.com/successcugo/ULAS/internal/queue"
	"github.com/successcugo/ULAS/internal/settings"
)

const (
	testSchool = "School of Information and Communication Technology (SICT)"
	testDept   = "Computer Science"
	testLevel  = "300"
)

// fakeStore is an in-memory stand-in for the GitHub-backed document store.
// It doubles as the archive repository via PushFile.
type fakeStore struct {
	mu     sync.Mutex
	docs   map[string][]byte
	revs   map[string]int
	pushed map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string][]byte{}, revs: map[string]int{}, pushed: map[string][]byte{}}
}

func (f *fakeStore) Read(_ context.Context, path string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.docs[path]
	if !ok {
		return nil, "", errs.ErrNotFound
	}
	return raw, strconv.Itoa(f.revs[path]), nil
}

func (f *fakeStore) ReadJSON(ctx context.Context, path string, v any) (string, error) {
	raw, rev, err := f.Read(ctx, path)
	if err != nil {
		return "", err
	}
	return rev, json.Unmarshal(raw, v)
}

func (f *fakeStore) WriteJSON(_ context.Context, path string, doc any, _ string, expectedRev string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[path]; ok && expectedRev != strconv.Itoa(f.revs[path]) {
		return "", errs.ErrConflict
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	f.docs[path] = raw
	f.revs[path]++
	return strconv.Itoa(f.revs[path]), nil
}

func (f *fakeStore) Delete(_ context.Context, path, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, path)
	return nil
}

func (f *fakeStore) PushFile(_ context.Context, path string, content []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed[path] = content
	return nil
}

type testAbbrevs struct {
	*catalog.Provider
	*settings.Service
}

type testEnv struct {
	router   *gin.Engine
	store    *fakeStore
	users    *identity.Service
	sessions *attendance.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.App{
		AdminUsername: "ict",
		AdminPassword: "masterpass",
		JWTIssuer:     "ulas-test",
		JWTSigningKey: "test-signing-key",
		AccessTTL:     time.Hour,
	}

	store := newFakeStore()
	docCache := cache.New(store)
	users := identity.NewService(docCache)
	st := settings.NewService(docCache)
	cat := catalog.NewProvider(store)
	sessions := attendance.NewService(store, store, testAbbrevs{cat, st})

	h := New(cfg, zap.NewNop(), users, sessions, st, cat, queue.NewInMemory(64))
	r := gin.New()
	h.Register(r)

	return &testEnv{router: r, store: store, users: users, sessions: sessions}
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) login(t *testing.T, username, password, role string) string {
	t.Helper()
	w := env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{
		"username": username, "password": password, "role": role,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func sessionURL(suffix string) string {
	base := fmt.Sprintf("/v1/sessions/%s/%s/%s",
		url.PathEscape(testSchool), url.PathEscape(testDept), testLevel)
	return base + suffix
}

func seedRep(t *testing.T, env *testEnv) string {
	t.Helper()
	err := env.users.Create(context.Background(), "rep300", "secret99", identity.RoleRep,
		testSchool, testDept, testLevel, "advisor1")
	require.NoError(t, err)
	return env.login(t, "rep300", "secret99", identity.RoleRep)
}

func TestLogin_Admin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	token := env.login(t, "ict", "masterpass", identity.RoleAdmin)
	require.NotEmpty(t, token)

	w := env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{
		"username": "ict", "password": "wrong", "role": identity.RoleAdmin,
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_UnknownRole(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{
		"username": "x", "password": "y", "role": "superuser",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalog(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/v1/catalog", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), testSchool)
}

func TestRepSessionLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := seedRep(t, env)

	// No session yet.
	w := env.do(t, http.MethodGet, "/v1/rep/session", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"active":false`)

	// Start.
	w = env.do(t, http.MethodPost, "/v1/rep/session", token, gin.H{"course_code": "csc301"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"course_code":"CSC301"`)

	// Starting again without force is refused.
	w = env.do(t, http.MethodPost, "/v1/rep/session", token, gin.H{"course_code": "CSC305"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), `"force_required":true`)

	// Force replaces it.
	w = env.do(t, http.MethodPost, "/v1/rep/session", token, gin.H{"course_code": "CSC305", "force": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Poll shows the live session with its token.
	w = env.do(t, http.MethodGet, "/v1/rep/session", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var poll struct {
		Active bool    `json:"active"`
		Token  string  `json:"token"`
		Remain float64 `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &poll))
	require.True(t, poll.Active)
	require.Len(t, poll.Token, 4)

	// Manual entry.
	w = env.do(t, http.MethodPost, "/v1/rep/session/entries", token, gin.H{
		"surname": "Okafor", "other_names": "Chukwudi", "matric": "20201234567",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// End pushes the CSV and removes the live session.
	w = env.do(t, http.MethodPost, "/v1/rep/session/end", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"entry_count":1`)
	require.NotEmpty(t, env.store.pushed)

	w = env.do(t, http.MethodGet, "/v1/rep/session", token, nil)
	require.Contains(t, w.Body.String(), `"active":false`)
}

func TestRepRoutes_RequireAuth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/v1/rep/session", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStudentFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	repToken := seedRep(t, env)

	// No session: probe is a 404.
	w := env.do(t, http.MethodGet, sessionURL(""), "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/v1/rep/session", repToken, gin.H{"course_code": "CSC301"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Probe shows the session but never the code.
	w = env.do(t, http.MethodGet, sessionURL(""), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"course_code":"CSC301"`)
	require.NotContains(t, w.Body.String(), `"token"`)

	// Wrong code.
	w = env.do(t, http.MethodPost, sessionURL("/verify"), "", gin.H{"code": "nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Read the current code the way the rep's screen would.
	sess, _, err := env.sessions.Load(context.Background(),
		attendance.Key{School: testSchool, Department: testDept, Level: testLevel})
	require.NoError(t, err)

	w = env.do(t, http.MethodPost, sessionURL("/verify"), "", gin.H{"code": sess.Token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var verify struct {
		Valid  bool   `json:"valid"`
		Ticket string `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verify))
	require.True(t, verify.Valid)
	require.NotEmpty(t, verify.Ticket)

	// Submission without the ticket is rejected.
	w = env.do(t, http.MethodPost, sessionURL("/entries"), "", gin.H{
		"surname": "okafor", "other_names": "chukwudi emeka", "matric": "20201234567",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// With the ticket it lands, normalized.
	w = env.do(t, http.MethodPost, sessionURL("/entries"), verify.Ticket, gin.H{
		"surname": "okafor", "other_names": "chukwudi emeka", "matric": "20201234567", "device_id": "dev-1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"surname":"OKAFOR"`)
	require.Contains(t, w.Body.String(), `"other_names":"Chukwudi Emeka"`)

	// Same matric again: conflict.
	w = env.do(t, http.MethodPost, sessionURL("/entries"), verify.Ticket, gin.H{
		"surname": "bello", "other_names": "aisha", "matric": "20201234567",
	})
	require.Equal(t, http.StatusConflict, w.Code)

	// Same device, different matric: the anti-cheat rule bites.
	w = env.do(t, http.MethodPost, sessionURL("/entries"), verify.Ticket, gin.H{
		"surname": "eze", "other_names": "ngozi", "matric": "20209999999", "device_id": "dev-1",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "device")

	// Bad matric shape never reaches the session.
	w = env.do(t, http.MethodPost, sessionURL("/entries"), verify.Ticket, gin.H{
		"surname": "eze", "other_names": "ngozi", "matric": "1234567890",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudentTicket_BoundToCohort(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	repToken := seedRep(t, env)
	w := env.do(t, http.MethodPost, "/v1/rep/session", repToken, gin.H{"course_code": "CSC301"})
	require.Equal(t, http.StatusCreated, w.Code)

	sess, _, err := env.sessions.Load(context.Background(),
		attendance.Key{School: testSchool, Department: testDept, Level: testLevel})
	require.NoError(t, err)

	w = env.do(t, http.MethodPost, sessionURL("/verify"), "", gin.H{"code": sess.Token})
	require.Equal(t, http.StatusOK, w.Code)
	var verify struct {
		Ticket string `json:"ticket"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verify))

	// The ticket from the 300-level session must not open another level.
	otherLevel := fmt.Sprintf("/v1/sessions/%s/%s/100/entries",
		url.PathEscape(testSchool), url.PathEscape(testDept))
	w = env.do(t, http.MethodPost, otherLevel, verify.Ticket, gin.H{
		"surname": "okafor", "other_names": "chukwudi", "matric": "20201234567",
	})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdvisorManagesReps(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	require.NoError(t, env.users.Create(context.Background(), "advisor1", "advpass99", identity.RoleAdvisor,
		testSchool, testDept, "", "ict"))
	token := env.login(t, "advisor1", "advpass99", identity.RoleAdvisor)

	// Create a rep for 300 level.
	w := env.do(t, http.MethodPost, "/v1/advisor/reps", token, gin.H{
		"username": "rep300", "password": "secret99", "confirm_password": "secret99", "level": testLevel,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// The level slot is now taken.
	w = env.do(t, http.MethodPost, "/v1/advisor/reps", token, gin.H{
		"username": "rep300b", "password": "secret99", "confirm_password": "secret99", "level": testLevel,
	})
	require.Equal(t, http.StatusConflict, w.Code)

	// Unknown level.
	w = env.do(t, http.MethodPost, "/v1/advisor/reps", token, gin.H{
		"username": "rep900", "password": "secret99", "confirm_password": "secret99", "level": "900",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Mismatched confirmation.
	w = env.do(t, http.MethodPost, "/v1/advisor/reps", token, gin.H{
		"username": "rep100", "password": "secret99", "confirm_password": "other", "level": "100",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/v1/advisor/reps", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"rep300"`)
	require.NotContains(t, w.Body.String(), "password_hash")

	// Reset the rep's password, then the rep logs in with it.
	w = env.do(t, http.MethodPost, "/v1/advisor/reps/rep300/password", token, gin.H{
		"password": "newpass9", "confirm_password": "newpass9",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env.login(t, "rep300", "newpass9", identity.RoleRep)

	// Delete.
	w = env.do(t, http.MethodDelete, "/v1/advisor/reps/rep300", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, "/v1/advisor/reps/rep300", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdvisor_CannotTouchOtherDept(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.users.Create(ctx, "advisor1", "advpass99", identity.RoleAdvisor,
		testSchool, testDept, "", "ict"))
	require.NoError(t, env.users.Create(ctx, "otherrep", "secret99", identity.RoleRep,
		testSchool, "Cyber Security", "300", "advisor2"))
	token := env.login(t, "advisor1", "advpass99", identity.RoleAdvisor)

	// A rep of another department looks like a missing account.
	w := env.do(t, http.MethodDelete, "/v1/advisor/reps/otherrep", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/v1/advisor/reps/otherrep/password", token, gin.H{
		"password": "newpass9", "confirm_password": "newpass9",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdvisorChangeOwnPassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	require.NoError(t, env.users.Create(context.Background(), "advisor1", "advpass99", identity.RoleAdvisor,
		testSchool, testDept, "", "ict"))
	token := env.login(t, "advisor1", "advpass99", identity.RoleAdvisor)

	// Wrong current password.
	w := env.do(t, http.MethodPost, "/v1/advisor/password", token, gin.H{
		"current_password": "nope", "password": "newpass9", "confirm_password": "newpass9",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/v1/advisor/password", token, gin.H{
		"current_password": "advpass99", "password": "newpass9", "confirm_password": "newpass9",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env.login(t, "advisor1", "newpass9", identity.RoleAdvisor)
}

func TestAdvisorAbbreviation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	require.NoError(t, env.users.Create(context.Background(), "advisor1", "advpass99", identity.RoleAdvisor,
		testSchool, testDept, "", "ict"))
	token := env.login(t, "advisor1", "advpass99", identity.RoleAdvisor)

	// Fallback initialism before any override.
	w := env.do(t, http.MethodGet, "/v1/advisor/abbreviation", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"CS"`)

	w = env.do(t, http.MethodPut, "/v1/advisor/abbreviation", token, gin.H{"abbreviation": "csc"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/v1/advisor/abbreviation", token, nil)
	require.Contains(t, w.Body.String(), `"CSC"`)
}

func TestAdminAdvisorLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.login(t, "ict", "masterpass", identity.RoleAdmin)

	w := env.do(t, http.MethodPost, "/v1/admin/advisors", token, gin.H{
		"username": "advisor1", "password": "advpass99", "confirm_password": "advpass99",
		"school": testSchool, "department": testDept,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Unknown department.
	w = env.do(t, http.MethodPost, "/v1/admin/advisors", token, gin.H{
		"username": "advisor2", "password": "advpass99", "confirm_password": "advpass99",
		"school": testSchool, "department": "Astrology",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/v1/admin/advisors", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"advisor1"`)

	w = env.do(t, http.MethodPost, "/v1/admin/advisors/advisor1/password", token, gin.H{
		"password": "newpass9", "confirm_password": "newpass9",
	})
	require.Equal(t, http.StatusOK, w.Code)
	env.login(t, "advisor1", "newpass9", identity.RoleAdvisor)

	w = env.do(t, http.MethodDelete, "/v1/admin/advisors/advisor1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, "/v1/admin/advisors/advisor1", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminSettings(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.login(t, "ict", "masterpass", identity.RoleAdmin)

	w := env.do(t, http.MethodGet, "/v1/admin/settings", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"token_lifetime":7`)

	w = env.do(t, http.MethodPut, "/v1/admin/settings", token, gin.H{"token_lifetime": 30})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPut, "/v1/admin/settings", token, gin.H{"token_lifetime": 2})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/v1/admin/settings", token, nil)
	require.Contains(t, w.Body.String(), `"token_lifetime":30`)
}

func TestAdminReplaceStructure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.login(t, "ict", "masterpass", identity.RoleAdmin)

	w := env.do(t, http.MethodPut, "/v1/admin/structure", token, gin.H{
		"schools":       gin.H{"New School": gin.H{"New Dept": 4}},
		"abbreviations": gin.H{"New School": "NS"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/v1/catalog", "", nil)
	require.Contains(t, w.Body.String(), "New School")

	// An empty upload must not wipe the catalog.
	w = env.do(t, http.MethodPut, "/v1/admin/structure", token, gin.H{"schools": gin.H{}})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutes_RejectRepToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := seedRep(t, env)

	w := env.do(t, http.MethodGet, "/v1/admin/settings", token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}
