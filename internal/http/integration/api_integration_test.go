package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskhub/internal/config"
	"taskhub/internal/db"
	apphttp "taskhub/internal/http"
)

func testConfig() config.Config {
	return config.Config{
		Env:            "test",
		JWTSecret:      "test-secret-key",
		JWTTTLDays:     7,
		AllowedOrigins: []string{},
		MaxBodyBytes:   1 << 20,
		AuthRateLimit:  1000,
		AuthRateWindow: time.Minute,
	}
}

func setupTestRouter(t *testing.T) (*gin.Engine, *pgxpool.Pool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")

	if dsn == "" {
		t.Skip("TEST_DB_DSN not set, skipping integration tests")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)

	if err != nil {
		t.Fatalf("failed to create pgx pool: %v", err)
	}

	t.Cleanup(pool.Close)

	if err := db.InitSchema(ctx, pool); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	_, err = pool.Exec(ctx, `TRUNCATE tasks, users RESTART IDENTITY CASCADE`)

	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// nil redis client: rate limiting is disabled in tests
	router := apphttp.NewRouter(logger, pool, nil, testConfig())

	return router, pool
}

func doRequest(router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	err := json.Unmarshal(w.Body.Bytes(), out)
	if err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
}

type taskPayload struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"userId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	DueDate     string `json:"dueDate"`
}

type taskResponse struct {
	Task taskPayload `json:"task"`
}

type taskListResponse struct {
	Tasks []taskPayload `json:"tasks"`
	Count int           `json:"count"`
}

func registerUser(t *testing.T, router http.Handler, name, email string) authResponse {
	t.Helper()

	body := fmt.Sprintf(`{"name":%q,"email":%q,"password":"secret1"}`, name, email)

	w := doRequest(router, http.MethodPost, "/auth/register", body, "")

	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: status=%d body=%s", w.Code, w.Body.String())
	}

	var resp authResponse
	mustReadJSON(t, w, &resp)

	return resp
}

func TestRegisterLoginFlow(t *testing.T) {
	router, pool := setupTestRouter(t)

	resp := registerUser(t, router, "Ada", "ada@example.com")

	if resp.Token == "" || resp.User.ID == 0 {
		t.Fatalf("register returned incomplete payload: %+v", resp)
	}

	// the stored hash must never equal the submitted plaintext
	var storedHash string
	err := pool.QueryRow(context.Background(),
		`SELECT password_hash FROM users WHERE email = $1`, "ada@example.com",
	).Scan(&storedHash)

	if err != nil {
		t.Fatalf("lookup stored hash: %v", err)
	}

	if storedHash == "secret1" {
		t.Fatal("plaintext password was persisted")
	}

	// the fresh token must authenticate as the new user
	w := doRequest(router, http.MethodGet, "/auth/me", "", resp.Token)

	if w.Code != http.StatusOK {
		t.Fatalf("me failed: status=%d body=%s", w.Code, w.Body.String())
	}

	var me struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	mustReadJSON(t, w, &me)

	if me.User.ID != resp.User.ID {
		t.Fatalf("token resolves to user %d, want %d", me.User.ID, resp.User.ID)
	}

	// duplicate registration fails and leaves the first user untouched
	w = doRequest(router, http.MethodPost, "/auth/register",
		`{"name":"Imposter","email":"ada@example.com","password":"different1"}`, "")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register: status=%d body=%s", w.Code, w.Body.String())
	}

	var name string
	err = pool.QueryRow(context.Background(),
		`SELECT name FROM users WHERE email = $1`, "ada@example.com",
	).Scan(&name)

	if err != nil || name != "Ada" {
		t.Fatalf("first user changed after duplicate registration: name=%q err=%v", name, err)
	}

	// login success
	w = doRequest(router, http.MethodPost, "/auth/login",
		`{"email":"ada@example.com","password":"secret1"}`, "")

	if w.Code != http.StatusOK {
		t.Fatalf("login failed: status=%d body=%s", w.Code, w.Body.String())
	}

	// unknown email and wrong password answer identically
	unknown := doRequest(router, http.MethodPost, "/auth/login",
		`{"email":"nobody@example.com","password":"secret1"}`, "")
	wrong := doRequest(router, http.MethodPost, "/auth/login",
		`{"email":"ada@example.com","password":"not-it-1"}`, "")

	if unknown.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", unknown.Code, wrong.Code)
	}

	codeOf := func(w *httptest.ResponseRecorder) string {
		var resp struct {
			Code string `json:"code"`
		}
		mustReadJSON(t, w, &resp)
		return resp.Code
	}

	if codeOf(unknown) != codeOf(wrong) {
		t.Fatal("login failures are distinguishable")
	}
}

func TestTaskLifecycle(t *testing.T) {
	router, _ := setupTestRouter(t)

	owner := registerUser(t, router, "Owner", "owner@example.com")

	// create with full fields round-trips exactly
	due := time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339)
	body := fmt.Sprintf(`{"title":"Write report","description":"Q3 numbers","priority":"high","category":"work","dueDate":%q}`, due)

	w := doRequest(router, http.MethodPost, "/tasks", body, owner.Token)

	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: status=%d body=%s", w.Code, w.Body.String())
	}

	var created taskResponse
	mustReadJSON(t, w, &created)

	if created.Task.ID == 0 || created.Task.UserID != owner.User.ID {
		t.Fatalf("created task not owned by caller: %+v", created.Task)
	}

	if created.Task.Title != "Write report" || created.Task.Priority != "high" ||
		created.Task.Category != "work" || created.Task.Completed {
		t.Fatalf("round trip mismatch: %+v", created.Task)
	}

	// fetch returns the same values
	w = doRequest(router, http.MethodGet, fmt.Sprintf("/tasks/%d", created.Task.ID), "", owner.Token)

	if w.Code != http.StatusOK {
		t.Fatalf("get failed: status=%d body=%s", w.Code, w.Body.String())
	}

	var fetched taskResponse
	mustReadJSON(t, w, &fetched)

	if fetched.Task != created.Task {
		t.Fatalf("fetched task differs:\n got %+v\nwant %+v", fetched.Task, created.Task)
	}

	// partial update: only completed flips, everything else survives
	w = doRequest(router, http.MethodPut, fmt.Sprintf("/tasks/%d", created.Task.ID),
		`{"completed":true}`, owner.Token)

	if w.Code != http.StatusOK {
		t.Fatalf("update failed: status=%d body=%s", w.Code, w.Body.String())
	}

	var updated taskResponse
	mustReadJSON(t, w, &updated)

	if !updated.Task.Completed {
		t.Fatal("completed not updated")
	}

	if updated.Task.Title != created.Task.Title || updated.Task.Priority != created.Task.Priority ||
		updated.Task.Category != created.Task.Category || updated.Task.Description != created.Task.Description {
		t.Fatalf("partial update touched other fields: %+v", updated.Task)
	}

	// defaults apply when fields are omitted
	w = doRequest(router, http.MethodPost, "/tasks", `{"title":"Minimal"}`, owner.Token)

	if w.Code != http.StatusCreated {
		t.Fatalf("minimal create failed: status=%d body=%s", w.Code, w.Body.String())
	}

	var minimal taskResponse
	mustReadJSON(t, w, &minimal)

	if minimal.Task.Priority != "medium" || minimal.Task.Category != "other" || minimal.Task.Completed {
		t.Fatalf("defaults not applied: %+v", minimal.Task)
	}

	// list is newest first
	w = doRequest(router, http.MethodGet, "/tasks", "", owner.Token)

	if w.Code != http.StatusOK {
		t.Fatalf("list failed: status=%d body=%s", w.Code, w.Body.String())
	}

	var list taskListResponse
	mustReadJSON(t, w, &list)

	if list.Count != 2 || len(list.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %+v", list)
	}

	if list.Tasks[0].ID != minimal.Task.ID {
		t.Fatalf("list not newest-first: %+v", list.Tasks)
	}

	// delete
	w = doRequest(router, http.MethodDelete, fmt.Sprintf("/tasks/%d", minimal.Task.ID), "", owner.Token)

	if w.Code != http.StatusOK {
		t.Fatalf("delete failed: status=%d body=%s", w.Code, w.Body.String())
	}

	w = doRequest(router, http.MethodGet, fmt.Sprintf("/tasks/%d", minimal.Task.ID), "", owner.Token)

	if w.Code != http.StatusNotFound {
		t.Fatalf("deleted task still fetchable: status=%d", w.Code)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	router, _ := setupTestRouter(t)

	alice := registerUser(t, router, "Alice", "alice@example.com")
	bob := registerUser(t, router, "Bob", "bob@example.com")

	w := doRequest(router, http.MethodPost, "/tasks", `{"title":"Alice private"}`, alice.Token)

	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: status=%d body=%s", w.Code, w.Body.String())
	}

	var created taskResponse
	mustReadJSON(t, w, &created)

	taskPath := fmt.Sprintf("/tasks/%d", created.Task.ID)

	// Bob's fetch of Alice's task is identical to fetching a missing id
	asBob := doRequest(router, http.MethodGet, taskPath, "", bob.Token)
	missing := doRequest(router, http.MethodGet, "/tasks/999999", "", bob.Token)

	if asBob.Code != http.StatusNotFound || missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404/404, got %d/%d", asBob.Code, missing.Code)
	}

	codeOf := func(w *httptest.ResponseRecorder) string {
		var resp struct {
			Code string `json:"code"`
		}
		mustReadJSON(t, w, &resp)
		return resp.Code
	}

	if codeOf(asBob) != codeOf(missing) {
		t.Fatal("foreign task response differs from missing task response")
	}

	// Bob's update and delete attempts must not mutate the row
	w = doRequest(router, http.MethodPut, taskPath, `{"title":"hijacked","completed":true}`, bob.Token)

	if w.Code != http.StatusNotFound {
		t.Fatalf("cross-owner update: status=%d body=%s", w.Code, w.Body.String())
	}

	w = doRequest(router, http.MethodDelete, taskPath, "", bob.Token)

	if w.Code != http.StatusNotFound {
		t.Fatalf("cross-owner delete: status=%d body=%s", w.Code, w.Body.String())
	}

	// re-fetch as Alice and confirm nothing changed
	w = doRequest(router, http.MethodGet, taskPath, "", alice.Token)

	if w.Code != http.StatusOK {
		t.Fatalf("owner fetch failed: status=%d body=%s", w.Code, w.Body.String())
	}

	var after taskResponse
	mustReadJSON(t, w, &after)

	if after.Task.Title != "Alice private" || after.Task.Completed {
		t.Fatalf("cross-owner request mutated the task: %+v", after.Task)
	}

	// Bob's list never contains Alice's tasks
	w = doRequest(router, http.MethodGet, "/tasks", "", bob.Token)

	var bobList taskListResponse
	mustReadJSON(t, w, &bobList)

	if bobList.Count != 0 {
		t.Fatalf("bob sees foreign tasks: %+v", bobList)
	}
}
