package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/tabkeep/internal/jobs"
	"github.com/starford/tabkeep/internal/models"
	"github.com/starford/tabkeep/internal/retention"
	"github.com/starford/tabkeep/internal/routes"
	"github.com/starford/tabkeep/internal/sse"
	"github.com/starford/tabkeep/internal/tasks"
	"github.com/starford/tabkeep/internal/testutil"
	"github.com/starford/tabkeep/internal/workspace"
)

type env struct {
	router http.Handler
	ws     *workspace.Workspace
	reg    *tasks.Registry
}

// testEnv wires a workspace, task registry and pipeline over a temp DB and
// upload directory. An empty token means auth is disabled.
func testEnv(t *testing.T, token string) *env {
	t.Helper()
	return testEnvWithEvents(t, token, nil)
}

func testEnvWithEvents(t *testing.T, token string, events http.Handler) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	table, err := routes.New([]models.Route{
		{Key: "home", Path: "/", Title: "Home", Home: true},
		{Key: "orders", Path: "/orders", Title: "Orders", KeepAlive: true},
		{Key: "manifests", Path: "/manifests", Title: "Manifests", KeepAlive: true},
		{Key: "login", Path: "/login", Title: "Login"},
	}, retention.BuiltinFactories())
	if err != nil {
		t.Fatal(err)
	}

	db := testutil.TestDB(t)
	ws, err := workspace.New(workspace.Config{Routes: table, Store: db, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ws.Close)

	uploads := testutil.TestUploads(t)
	reg := tasks.NewRegistry()
	pipeline := jobs.NewPipeline(reg, jobs.NewLocalRunner(uploads, db, 0), logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pipeline.Shutdown(ctx)
	})

	router := NewRouter(RouterConfig{
		Workspace:   NewWorkspaceHandler(ws),
		Tasks:       NewTaskHandler(reg, pipeline, uploads),
		AuthEnabled: token != "",
		Token:       token,
		Events:      events,
	})
	return &env{router: router, ws: ws, reg: reg}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) workspace.State {
	t.Helper()
	var st workspace.State
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v (%s)", err, w.Body.String())
	}
	return st
}

func tabKeys(st workspace.State) []string {
	out := make([]string, len(st.Tabs))
	for i, tab := range st.Tabs {
		out[i] = tab.Key
	}
	return out
}

func TestNavigateOpensKeepAliveTab(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/navigation", NavigationRequest{Path: "/orders"})
	if w.Code != http.StatusOK {
		t.Fatalf("navigate = %d, body = %s", w.Code, w.Body.String())
	}
	st := decodeState(t, w)
	if st.ActiveKey != "orders" || strings.Join(tabKeys(st), ",") != "home,orders" {
		t.Errorf("state = %+v", st)
	}

	// Transient route: no new tab.
	st = decodeState(t, e.do(t, http.MethodPost, "/navigation", NavigationRequest{Path: "/login"}))
	if len(st.Tabs) != 2 || st.Layer != "transient" {
		t.Errorf("after /login: tabs = %v, layer = %s", tabKeys(st), st.Layer)
	}
}

func TestNavigateValidation(t *testing.T) {
	e := testEnv(t, "")
	if w := e.do(t, http.MethodPost, "/navigation", NavigationRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty path = %d, want 400", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/navigation", strings.NewReader("{"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestCloseTabStatusCodes(t *testing.T) {
	e := testEnv(t, "")
	e.do(t, http.MethodPost, "/navigation", NavigationRequest{Path: "/orders"})
	e.do(t, http.MethodPost, "/navigation", NavigationRequest{Path: "/manifests"})

	w := e.do(t, http.MethodDelete, "/tabs/manifests", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("close = %d", w.Code)
	}
	if st := decodeState(t, w); st.ActiveKey != "orders" {
		t.Errorf("active after close = %s, want orders", st.ActiveKey)
	}
	if w := e.do(t, http.MethodDelete, "/tabs/manifests", nil); w.Code != http.StatusNotFound {
		t.Errorf("close missing = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/tabs/home", nil); w.Code != http.StatusConflict {
		t.Errorf("close home = %d, want 409", w.Code)
	}
}

func TestActivateReorderCloseOthersAndAll(t *testing.T) {
	e := testEnv(t, "")
	e.do(t, http.MethodPost, "/navigation", NavigationRequest{Path: "/orders"})
	e.do(t, http.MethodPost, "/navigation", NavigationRequest{Path: "/manifests"})

	st := decodeState(t, e.do(t, http.MethodPost, "/tabs/orders/activate", nil))
	if st.ActiveKey != "orders" || st.Location != "/orders" {
		t.Errorf("activate: %+v", st)
	}
	if w := e.do(t, http.MethodPost, "/tabs/nope/activate", nil); w.Code != http.StatusNotFound {
		t.Errorf("activate missing = %d", w.Code)
	}

	st = decodeState(t, e.do(t, http.MethodPost, "/tabs/reorder", ReorderRequest{From: 2, To: 1}))
	if got := strings.Join(tabKeys(st), ","); got != "home,manifests,orders" {
		t.Errorf("reorder = %s", got)
	}
	if w := e.do(t, http.MethodPost, "/tabs/reorder", ReorderRequest{From: 1, To: 0}); w.Code != http.StatusBadRequest {
		t.Errorf("reorder onto home = %d, want 400", w.Code)
	}

	st = decodeState(t, e.do(t, http.MethodPost, "/tabs/close-others", nil))
	if got := strings.Join(tabKeys(st), ","); got != "home,orders" {
		t.Errorf("close-others = %s", got)
	}
	st = decodeState(t, e.do(t, http.MethodPost, "/tabs/close-all", nil))
	if len(st.Tabs) != 1 || st.ActiveKey != "home" || len(st.Pages) != 0 {
		t.Errorf("close-all = %+v", st)
	}
}

func TestPageStateLifecycle(t *testing.T) {
	e := testEnv(t, "")
	if w := e.do(t, http.MethodGet, "/pages/orders/state", nil); w.Code != http.StatusNotFound {
		t.Errorf("state before open = %d, want 404", w.Code)
	}
	e.do(t, http.MethodPost, "/navigation", NavigationRequest{Path: "/orders"})

	req := httptest.NewRequest(http.MethodPut, "/pages/orders/state", strings.NewReader(`{"draft":"x"}`))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("put state = %d, body = %s", w.Code, w.Body.String())
	}
	req = httptest.NewRequest(http.MethodPut, "/pages/orders/state", strings.NewReader(`not json`))
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("put invalid = %d, want 400", w.Code)
	}

	// State survives a round trip through another tab.
	e.do(t, http.MethodPost, "/navigation", NavigationRequest{Path: "/manifests"})
	e.do(t, http.MethodPost, "/navigation", NavigationRequest{Path: "/orders"})
	w = e.do(t, http.MethodGet, "/pages/orders/state", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"draft":"x"}` {
		t.Errorf("get state = %d %s", w.Code, w.Body.String())
	}

	// Closing the tab destroys it.
	e.do(t, http.MethodDelete, "/tabs/orders", nil)
	if w := e.do(t, http.MethodGet, "/pages/orders/state", nil); w.Code != http.StatusNotFound {
		t.Errorf("state after close = %d, want 404", w.Code)
	}
}

func TestListRoutes(t *testing.T) {
	e := testEnv(t, "")
	var resp RouteListResponse
	w := e.do(t, http.MethodGet, "/routes", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || len(resp.Routes) != 4 {
		t.Errorf("routes = %d %+v", w.Code, resp)
	}
}

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/tasks", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func taskStatus(e *env, id string) models.TaskStatus {
	task, _ := e.reg.Get(id)
	return task.Status
}

func TestUploadPreviewConfirmDismiss(t *testing.T) {
	e := testEnv(t, "")

	w := uploadFile(t, e.router, "manifest.csv", []byte("sku,qty\nA,1\n"), map[string]string{
		"target_type": "order", "target_id": "42", "target_label": "PO-42",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var created TaskCreatedResponse
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	testutil.Eventually(t, 2*time.Second, func() bool { return taskStatus(e, created.ID) == models.TaskPreview },
		"task never reached preview")

	w = e.do(t, http.MethodGet, "/tasks/"+created.ID, nil)
	var task models.Task
	_ = json.Unmarshal(w.Body.Bytes(), &task)
	if task.Preview == nil || task.Preview.TotalRows != 1 || task.BoundTarget == nil || task.BoundTarget.Label != "PO-42" {
		t.Errorf("task = %+v", task)
	}
	if strings.Contains(w.Body.String(), "handle") {
		t.Errorf("handle leaked to client: %s", w.Body.String())
	}

	var summary TaskSummaryResponse
	_ = json.Unmarshal(e.do(t, http.MethodGet, "/tasks/summary", nil).Body.Bytes(), &summary)
	if len(summary.NeedsAttention) != 1 || summary.Total != 1 {
		t.Errorf("summary = %+v", summary)
	}

	if w := e.do(t, http.MethodPost, "/tasks/"+created.ID+"/confirm", nil); w.Code != http.StatusAccepted {
		t.Fatalf("confirm = %d, body = %s", w.Code, w.Body.String())
	}
	testutil.Eventually(t, 2*time.Second, func() bool { return taskStatus(e, created.ID) == models.TaskCompleted },
		"task never completed")
	if w := e.do(t, http.MethodPost, "/tasks/"+created.ID+"/confirm", nil); w.Code != http.StatusConflict {
		t.Errorf("confirm twice = %d, want 409", w.Code)
	}

	if w := e.do(t, http.MethodDelete, "/tasks/"+created.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("dismiss = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/tasks/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get dismissed = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/tasks/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("dismiss twice = %d, want 404", w.Code)
	}
}

func TestUploadAutoCommitAndStatusFilter(t *testing.T) {
	e := testEnv(t, "")
	w := uploadFile(t, e.router, "auto.csv", []byte("a,b\n1,2\n"), map[string]string{"auto_commit": "true"})
	var created TaskCreatedResponse
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	testutil.Eventually(t, 2*time.Second, func() bool { return taskStatus(e, created.ID) == models.TaskCompleted },
		"auto-commit task never completed")

	var list TaskListResponse
	_ = json.Unmarshal(e.do(t, http.MethodGet, "/tasks?status=completed,error", nil).Body.Bytes(), &list)
	if len(list.Tasks) != 1 || list.Tasks[0].ID != created.ID {
		t.Errorf("filtered = %+v", list)
	}
	_ = json.Unmarshal(e.do(t, http.MethodGet, "/tasks?status=preview", nil).Body.Bytes(), &list)
	if len(list.Tasks) != 0 {
		t.Errorf("preview filter = %+v", list)
	}
	if w := e.do(t, http.MethodGet, "/tasks?status=bogus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bogus status = %d, want 400", w.Code)
	}
}

func TestUploadRejections(t *testing.T) {
	e := testEnv(t, "")
	if w := uploadFile(t, e.router, "notes.txt", []byte("x"), nil); w.Code != http.StatusBadRequest {
		t.Errorf("txt upload = %d, want 400", w.Code)
	}
	if w := uploadFile(t, e.router, "a.csv", []byte("x"), map[string]string{"auto_commit": "maybe"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad auto_commit = %d, want 400", w.Code)
	}
	if w := uploadFile(t, e.router, "a.csv", []byte("x"), map[string]string{"target_type": "order"}); w.Code != http.StatusBadRequest {
		t.Errorf("half target = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-multipart = %d, want 400", w.Code)
	}
	if e.reg.Len() != 0 {
		t.Errorf("rejected uploads created %d tasks", e.reg.Len())
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/workspace", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/workspace", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_QueryTokenOnlyForGet(t *testing.T) {
	e := testEnv(t, "secret123")

	w := e.do(t, http.MethodGet, "/workspace?access_token=secret123", nil)
	if w.Code != http.StatusOK {
		t.Errorf("GET with query token = %d, want 200", w.Code)
	}
	w = e.do(t, http.MethodPost, "/tabs/close-all?access_token=secret123", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("POST with query token = %d, want 401", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("401 without WWW-Authenticate header")
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	broker := sse.NewBroker()
	defer broker.Close()
	e := testEnvWithEvents(t, "secret", broker)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE without token = %d, want 401", w.Code)
	}
}

func TestSSEEvents_Stream(t *testing.T) {
	broker := sse.NewBroker()
	defer broker.Close()
	e := testEnvWithEvents(t, "", broker)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		e.router.ServeHTTP(w, req)
		close(done)
	}()

	testutil.Eventually(t, time.Second, func() bool { return broker.ClientCount() == 1 }, "client never subscribed")
	broker.NavigateTo("/orders")
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("content-type = %q", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "event: route.navigate") {
		t.Errorf("stream = %q", w.Body.String())
	}
}
