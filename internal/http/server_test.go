package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"loanbook/internal/core"
	"loanbook/internal/ledger/memory"
	"loanbook/internal/middleware/ratelimit"
	"loanbook/internal/services"
)

var testNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	svc := services.NewLoanService(memory.New(), nil, nil).WithClock(func() time.Time { return testNow })
	srv := NewServer(":0", svc, opts...)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

type loanBody struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	Amount             float64 `json:"amount"`
	Interest           float64 `json:"interest"`
	StartDate          string  `json:"startDate"`
	DueDay             int     `json:"dueDay"`
	LastCollectedMonth *string `json:"lastCollectedMonth"`
	Status             string  `json:"status"`
	DueDate            string  `json:"dueDate"`
}

func createLoan(t *testing.T, srv *Server, body string) loanBody {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/loans", "application/json", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}
	return decode[loanBody](t, rr)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rr.Code)
	}
	if got := decode[map[string]any](t, rr)["status"]; got != "ok" {
		t.Errorf("healthz status field = %v, want ok", got)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestReady(t *testing.T) {
	srv := newTestServer(t,
		WithReadinessCheck("store", func(context.Context) error { return nil }),
	)
	if rr := do(t, srv, http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, body %s", rr.Code, rr.Body.String())
	}

	failing := newTestServer(t,
		WithReadinessCheck("store", func(context.Context) error { return nil }),
		WithReadinessCheck("broker", func(context.Context) error { return errors.New("down") }),
	)
	rr := do(t, failing, http.MethodGet, "/readyz", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rr.Code)
	}
	body := decode[map[string]any](t, rr)
	checks, _ := body["checks"].(map[string]any)
	if got, _ := checks["broker"].(string); !strings.Contains(got, "down") {
		t.Errorf("broker check = %q, want failure", got)
	}
	if checks["store"] != "ok" {
		t.Errorf("store check = %v, want ok", checks["store"])
	}
}

func TestLoanLifecycle(t *testing.T) {
	srv := newTestServer(t)

	created := createLoan(t, srv, `{"name":"Alice","amount":"1000","interest":"25,50","startDate":"2024-01-10"}`)
	if created.ID == 0 || created.Name != "Alice" || created.DueDay != 10 {
		t.Fatalf("created = %+v", created)
	}
	if created.Amount != 1000 || created.Interest != 25.5 {
		t.Errorf("amounts = %v/%v, want 1000/25.5", created.Amount, created.Interest)
	}
	if created.Status != "overdue" || created.DueDate != "2024-03-10" {
		t.Errorf("status = %s due %s, want overdue due 2024-03-10", created.Status, created.DueDate)
	}
	if created.LastCollectedMonth != nil {
		t.Errorf("new loan should not be collected: %v", *created.LastCollectedMonth)
	}

	path := "/loans/" + jsonID(created.ID)

	rr := do(t, srv, http.MethodGet, path, "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, path+"/collect", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("collect status = %d, body %s", rr.Code, rr.Body.String())
	}
	collected := decode[loanBody](t, rr)
	if collected.Status != "collected" || collected.LastCollectedMonth == nil || *collected.LastCollectedMonth != "2024-2" {
		t.Errorf("collected = %+v", collected)
	}

	// Edits replace every field, the collection mark included
	rr = do(t, srv, http.MethodPut, path, "application/x-www-form-urlencoded", "name=Alice+B&amount=900&startDate=2024-01-31")
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rr.Code, rr.Body.String())
	}
	updated := decode[loanBody](t, rr)
	if updated.ID != created.ID || updated.Name != "Alice B" || updated.DueDay != 31 {
		t.Errorf("updated = %+v", updated)
	}
	if updated.LastCollectedMonth != nil || updated.Status != "upcoming" || updated.DueDate != "2024-03-31" {
		t.Errorf("updated status = %+v", updated)
	}

	rr = do(t, srv, http.MethodGet, "/loans", "", "")
	if list := decode[[]loanBody](t, rr); len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}

	if rr := do(t, srv, http.MethodDelete, path, "", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, path, "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rr.Code)
	}
	if rr := do(t, srv, http.MethodDelete, path, "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
	rr = do(t, srv, http.MethodGet, "/loans", "", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("empty list body = %s, want []", rr.Body.String())
	}
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestCreateLoanValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
	}{
		{"missing name", `{"amount":"10","startDate":"2024-01-01"}`, http.StatusUnprocessableEntity, "name"},
		{"negative amount", `{"name":"A","amount":"-1","startDate":"2024-01-01"}`, http.StatusUnprocessableEntity, "amount"},
		{"bad date", `{"name":"A","amount":"1","startDate":"01/02/2024"}`, http.StatusUnprocessableEntity, "startDate"},
		{"malformed json", `{"name":`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/loans", "application/json", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantField == "" {
				return
			}
			body := decode[struct {
				Fields map[string]string `json:"fields"`
			}](t, rr)
			if _, ok := body.Fields[tt.wantField]; !ok {
				t.Errorf("fields = %v, want %q", body.Fields, tt.wantField)
			}
		})
	}
}

func TestUnknownLoan(t *testing.T) {
	srv := newTestServer(t)
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/loans/42", ""},
		{http.MethodPut, "/loans/42", `{"name":"A","amount":"1","startDate":"2024-01-01"}`},
		{http.MethodPost, "/loans/42/collect", ""},
		{http.MethodGet, "/loans/abc", ""},
	} {
		rr := do(t, srv, tc.method, tc.path, "application/json", tc.body)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", tc.method, tc.path, rr.Code)
		}
	}
}

func TestDashboardCache(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/dashboard", "", "")
	if rr.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first dashboard X-Cache = %q, want MISS", rr.Header().Get("X-Cache"))
	}
	empty := decode[dashboardBody](t, rr)
	if !empty.Empty || empty.ActionRequired == nil || empty.Upcoming == nil {
		t.Errorf("empty dashboard = %+v", empty)
	}

	rr = do(t, srv, http.MethodGet, "/dashboard", "", "")
	if rr.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second dashboard X-Cache = %q, want HIT", rr.Header().Get("X-Cache"))
	}

	due := createLoan(t, srv, `{"name":"Due","amount":"100","interest":"5","startDate":"2024-02-15"}`)
	later := createLoan(t, srv, `{"name":"Later","amount":"100","startDate":"2023-12-31"}`)
	createLoan(t, srv, `{"name":"Past","amount":"100","startDate":"2024-01-01"}`)

	rr = do(t, srv, http.MethodGet, "/dashboard", "", "")
	if rr.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("dashboard after write X-Cache = %q, want MISS", rr.Header().Get("X-Cache"))
	}
	d := decode[dashboardBody](t, rr)
	if len(d.ActionRequired) != 2 || d.ActionRequired[0].ID != due.ID || d.ActionRequired[0].Status != "pending" || d.ActionRequired[1].Status != "overdue" {
		t.Errorf("actionRequired = %+v", d.ActionRequired)
	}
	if len(d.Upcoming) != 1 || d.Upcoming[0].ID != later.ID || d.Upcoming[0].DueDate != "2024-03-31" {
		t.Errorf("upcoming = %+v", d.Upcoming)
	}

	do(t, srv, http.MethodPost, "/loans/"+jsonID(due.ID)+"/collect", "", "")
	d = decode[dashboardBody](t, do(t, srv, http.MethodGet, "/dashboard", "", ""))
	if len(d.ActionRequired) != 1 || d.Empty {
		t.Errorf("collected loan still listed: %+v", d.ActionRequired)
	}
}

// gatedStore blocks the first LoadLoans after it has read the loans, until
// release is closed.
type gatedStore struct {
	*memory.Store
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) LoadLoans(ctx context.Context) ([]core.Loan, error) {
	loans, err := g.Store.LoadLoans(ctx)
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return loans, err
}

func TestDashboardNotCachedAcrossWrite(t *testing.T) {
	store := &gatedStore{Store: memory.New(), entered: make(chan struct{}), release: make(chan struct{})}
	store.armed.Store(true)
	svc := services.NewLoanService(store, nil, nil).WithClock(func() time.Time { return testNow })
	srv := NewServer(":0", svc)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
		done <- rr
	}()

	<-store.entered
	createLoan(t, srv, `{"name":"Later","amount":"100","startDate":"2024-01-31"}`)
	close(store.release)

	stale := <-done
	if got := stale.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("in-flight dashboard X-Cache = %q, want %q", got, "MISS")
	}

	rr := do(t, srv, http.MethodGet, "/dashboard", "", "")
	if got := rr.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("dashboard after write X-Cache = %q, want %q", got, "MISS")
	}
	d := decode[dashboardBody](t, rr)
	if len(d.Upcoming) != 1 || d.Empty {
		t.Errorf("dashboard upcoming = %d loans, empty = %v, want 1 loan", len(d.Upcoming), d.Empty)
	}

	rr = do(t, srv, http.MethodGet, "/dashboard", "", "")
	if got := rr.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("repeated dashboard X-Cache = %q, want %q", got, "HIT")
	}
}

type dashboardBody struct {
	ActionRequired []loanBody `json:"actionRequired"`
	Upcoming       []loanBody `json:"upcoming"`
	Empty          bool       `json:"empty"`
}

func TestBackupRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	createLoan(t, srv, `{"name":"A","amount":"10","startDate":"2024-01-31"}`)
	createLoan(t, srv, `{"name":"B","amount":"20","startDate":"2024-02-29"}`)

	rr := do(t, srv, http.MethodGet, "/backup", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "loan-backup.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	exported := rr.Body.String()

	other := newTestServer(t)
	rr = do(t, other, http.MethodPost, "/backup", "application/json", exported)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status = %d, body %s", rr.Code, rr.Body.String())
	}
	if got := decode[map[string]int](t, rr)["imported"]; got != 2 {
		t.Errorf("imported = %d, want 2", got)
	}

	list := decode[[]loanBody](t, do(t, other, http.MethodGet, "/loans", "", ""))
	if len(list) != 2 || list[0].Name != "A" || list[1].Name != "B" {
		t.Errorf("restored list = %+v", list)
	}
}

func TestBackupImportMultipart(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "loan-backup.json")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(`[{"id":1,"name":"M","amount":5,"interest":0,"startDate":"2024-03-01","dueDay":1,"lastCollectedMonth":"2024-2"}]`))
	mw.Close()

	rr := do(t, srv, http.MethodPost, "/backup", mw.FormDataContentType(), buf.String())
	if rr.Code != http.StatusOK {
		t.Fatalf("import status = %d, body %s", rr.Code, rr.Body.String())
	}
	list := decode[[]loanBody](t, do(t, srv, http.MethodGet, "/loans", "", ""))
	if len(list) != 1 || list[0].Status != "collected" {
		t.Errorf("restored list = %+v", list)
	}
}

func TestBackupImportRejectsInvalid(t *testing.T) {
	srv := newTestServer(t)
	createLoan(t, srv, `{"name":"Keep","amount":"10","startDate":"2024-01-01"}`)

	for _, body := range []string{`{"loans":[]}`, `not json`, `[{"id":1,"name":""}]`} {
		rr := do(t, srv, http.MethodPost, "/backup", "application/json", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("import %q status = %d, want 400", body, rr.Code)
		}
	}

	list := decode[[]loanBody](t, do(t, srv, http.MethodGet, "/loans", "", ""))
	if len(list) != 1 || list[0].Name != "Keep" {
		t.Errorf("collection changed after rejected import: %+v", list)
	}
}

func TestWriteRateLimit(t *testing.T) {
	srv := newTestServer(t, WithRateLimit(ratelimit.Config{
		RequestsPerMinute: 2,
		Methods:           []string{http.MethodPost},
	}))

	body := `{"name":"A","amount":"1","startDate":"2024-01-01"}`
	for i := 0; i < 2; i++ {
		if rr := do(t, srv, http.MethodPost, "/loans", "application/json", body); rr.Code != http.StatusCreated {
			t.Fatalf("request %d status = %d", i, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodPost, "/loans", "application/json", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third write status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	if rr := do(t, srv, http.MethodGet, "/loans", "", ""); rr.Code != http.StatusOK {
		t.Errorf("reads should not be limited, status = %d", rr.Code)
	}
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/wp-admin/setup.php", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("scan status = %d, want 400", rr.Code)
	}
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodGet, "/dashboard", "", "")
	rr := do(t, srv, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	for _, want := range []string{"cache_misses_total 1", "loans_saved_total 0", "http_requests_total"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
