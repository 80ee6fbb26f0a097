package services

import (
	"context"
	"errors"
	"loanbook/internal/amqp"
	"loanbook/internal/backup"
	"loanbook/internal/core"
	"loanbook/internal/ledger/memory"
	"strings"
	"sync"
	"testing"
	"time"
)

type publishedSync struct {
	id int64
	op amqp.SyncOp
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []publishedSync
	err  error
}

func (p *fakePublisher) PublishLoanSync(_ context.Context, id int64, op amqp.SyncOp) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, publishedSync{id: id, op: op})
	return p.err
}

type failingStore struct{}

func (failingStore) LoadLoans(context.Context) ([]core.Loan, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) SaveLoans(context.Context, []core.Loan) error {
	return errors.New("disk on fire")
}

func newTestService(now time.Time) (*LoanService, *memory.Store, *fakePublisher) {
	store := memory.New()
	pub := &fakePublisher{}
	svc := NewLoanService(store, pub, nil).WithClock(func() time.Time { return now })
	return svc, store, pub
}

func input(name string, start core.Date) core.LoanInput {
	return core.LoanInput{
		Name:      name,
		Amount:    core.Money{Cents: 100000},
		Interest:  core.Money{Cents: 2500},
		StartDate: start,
	}
}

func TestLoanService_SubmitNew(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, store, pub := newTestService(now)
	ctx := context.Background()

	a, err := svc.Submit(ctx, NewSession(), input("Ana", core.NewDate(2024, 1, 31)))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	b, err := svc.Submit(ctx, NewSession(), input("Bo", core.NewDate(2024, 2, 5)))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if a.ID != now.UnixMilli() || b.ID != a.ID+1 {
		t.Errorf("ids = %d, %d; want creation millis bumped on collision", a.ID, b.ID)
	}
	if a.DueDay != 31 || a.LastCollectedMonth != nil {
		t.Errorf("unexpected new loan %+v", a)
	}

	stored, _ := store.LoadLoans(ctx)
	if len(stored) != 2 || stored[0].ID != a.ID || stored[1].ID != b.ID {
		t.Errorf("stored = %+v", stored)
	}
	if len(pub.sent) != 2 || pub.sent[0].op != amqp.OpUpsert {
		t.Errorf("published = %+v", pub.sent)
	}
}

func TestLoanService_SubmitRejectsInvalid(t *testing.T) {
	svc, store, pub := newTestService(time.Now())
	_, err := svc.Submit(context.Background(), NewSession(), input("  ", core.NewDate(2024, 1, 1)))
	if !errors.Is(err, core.ErrEmptyName) {
		t.Fatalf("Submit() error = %v, want ErrEmptyName", err)
	}
	if loans, _ := store.LoadLoans(context.Background()); len(loans) != 0 {
		t.Errorf("invalid loan stored")
	}
	if len(pub.sent) != 0 {
		t.Errorf("invalid loan published")
	}
}

func TestLoanService_EditReplacesInPlace(t *testing.T) {
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(now)
	ctx := context.Background()

	first, _ := svc.Submit(ctx, NewSession(), input("Ana", core.NewDate(2024, 1, 31)))
	second, _ := svc.Submit(ctx, NewSession(), input("Bo", core.NewDate(2024, 1, 10)))
	if _, err := svc.Collect(ctx, first.ID); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	edited, err := svc.Submit(ctx, EditLoan(first.ID), input("Ana Maria", core.NewDate(2024, 2, 12)))
	if err != nil {
		t.Fatalf("Submit(edit) error = %v", err)
	}
	if edited.ID != first.ID || edited.Name != "Ana Maria" || edited.DueDay != 12 {
		t.Errorf("edited = %+v", edited)
	}
	if edited.LastCollectedMonth != nil {
		t.Errorf("edit should reset collection, got %v", edited.LastCollectedMonth)
	}

	stored, _ := store.LoadLoans(ctx)
	if len(stored) != 2 || stored[0].ID != first.ID || stored[1].ID != second.ID {
		t.Errorf("edit changed order: %+v", stored)
	}

	if _, err := svc.Submit(ctx, EditLoan(42), input("Ghost", core.NewDate(2024, 1, 1))); !errors.Is(err, core.ErrLoanNotFound) {
		t.Errorf("Submit(edit unknown) error = %v, want ErrLoanNotFound", err)
	}
}

func TestLoanService_CollectAndDashboard(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	svc, _, pub := newTestService(now)
	ctx := context.Background()

	overdue, _ := svc.Submit(ctx, NewSession(), input("A", core.NewDate(2024, 1, 10)))
	upcoming, _ := svc.Submit(ctx, NewSession(), input("B", core.NewDate(2024, 1, 20)))
	pending, _ := svc.Submit(ctx, NewSession(), input("C", core.NewDate(2024, 1, 15)))

	dash, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if len(dash.ActionRequired) != 2 || dash.ActionRequired[0].Loan.ID != overdue.ID || dash.ActionRequired[1].Loan.ID != pending.ID {
		t.Errorf("ActionRequired = %+v", dash.ActionRequired)
	}
	if len(dash.Upcoming) != 1 || dash.Upcoming[0].Loan.ID != upcoming.ID {
		t.Errorf("Upcoming = %+v", dash.Upcoming)
	}

	collected, err := svc.Collect(ctx, overdue.ID)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if !collected.CollectedIn(core.MonthKeyOf(now)) {
		t.Errorf("collected = %+v", collected)
	}

	views, err := svc.Loans(ctx)
	if err != nil {
		t.Fatalf("Loans() error = %v", err)
	}
	want := []core.Status{core.StatusCollected, core.StatusUpcoming, core.StatusPending}
	for i, v := range views {
		if v.Status != want[i] {
			t.Errorf("views[%d].Status = %v, want %v", i, v.Status, want[i])
		}
	}

	if _, err := svc.Collect(ctx, 99); !errors.Is(err, core.ErrLoanNotFound) {
		t.Errorf("Collect(unknown) error = %v", err)
	}
	if n := len(pub.sent); n != 4 {
		t.Errorf("published %d messages, want 4", n)
	}
}

func TestLoanService_Delete(t *testing.T) {
	svc, store, pub := newTestService(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	l, _ := svc.Submit(ctx, NewSession(), input("A", core.NewDate(2024, 1, 10)))
	if err := svc.Delete(ctx, l.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if loans, _ := store.LoadLoans(ctx); len(loans) != 0 {
		t.Errorf("loan not deleted: %+v", loans)
	}
	if last := pub.sent[len(pub.sent)-1]; last.op != amqp.OpDelete || last.id != l.ID {
		t.Errorf("last published = %+v", last)
	}
	if err := svc.Delete(ctx, l.ID); !errors.Is(err, core.ErrLoanNotFound) {
		t.Errorf("Delete(again) error = %v", err)
	}
	if _, err := svc.Loan(ctx, l.ID); !errors.Is(err, core.ErrLoanNotFound) {
		t.Errorf("Loan(deleted) error = %v", err)
	}
}

// findingStore counts single-loan lookups on top of a memory store.
type findingStore struct {
	*memory.Store
	finds int
}

func (f *findingStore) FindLoan(ctx context.Context, id int64) (core.Loan, error) {
	f.finds++
	loans, err := f.LoadLoans(ctx)
	if err != nil {
		return core.Loan{}, err
	}
	if l, ok := core.FindLoan(loans, id); ok {
		return l, nil
	}
	return core.Loan{}, core.ErrLoanNotFound
}

func TestLoanService_LoanUsesFinder(t *testing.T) {
	store := &findingStore{Store: memory.New()}
	svc := NewLoanService(store, nil, nil).WithClock(func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) })
	ctx := context.Background()

	l, err := svc.Submit(ctx, NewSession(), input("A", core.NewDate(2024, 1, 31)))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	tests := []struct {
		id      int64
		wantErr error
	}{
		{l.ID, nil},
		{l.ID + 1, core.ErrLoanNotFound},
	}
	for _, tt := range tests {
		got, err := svc.View(ctx, tt.id)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("View(%d) error = %v, want %v", tt.id, err, tt.wantErr)
			continue
		}
		if tt.wantErr == nil && (got.Loan.ID != l.ID || got.Status != core.StatusUpcoming) {
			t.Errorf("View(%d) = %+v, want upcoming loan %d", tt.id, got, l.ID)
		}
	}
	if store.finds != len(tests) {
		t.Errorf("FindLoan calls = %v, want %v", store.finds, len(tests))
	}
}

func TestLoanService_PublishFailureDoesNotFail(t *testing.T) {
	svc, store, pub := newTestService(time.Now())
	pub.err = errors.New("broker down")

	if _, err := svc.Submit(context.Background(), NewSession(), input("A", core.NewDate(2024, 1, 10))); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if loans, _ := store.LoadLoans(context.Background()); len(loans) != 1 {
		t.Errorf("loan not saved")
	}
}

func TestLoanService_NilPublisher(t *testing.T) {
	svc := NewLoanService(memory.New(), nil, nil)
	if _, err := svc.Submit(context.Background(), NewSession(), input("A", core.NewDate(2024, 1, 10))); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
}

func TestLoanService_StoreErrors(t *testing.T) {
	svc := NewLoanService(failingStore{}, nil, nil)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, NewSession(), input("A", core.NewDate(2024, 1, 10))); err == nil || !strings.Contains(err.Error(), "load loans") {
		t.Errorf("Submit() error = %v", err)
	}
	if _, err := svc.Dashboard(ctx); err == nil {
		t.Errorf("Dashboard() should fail")
	}
	if _, err := svc.Export(ctx); err == nil {
		t.Errorf("Export() should fail")
	}
}

func TestLoanService_ExportImport(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	src, _, _ := newTestService(now)
	ctx := context.Background()

	src.Submit(ctx, NewSession(), input("A", core.NewDate(2024, 1, 10)))
	b, _ := src.Submit(ctx, NewSession(), input("B", core.NewDate(2024, 1, 31)))
	src.Collect(ctx, b.ID)

	data, err := src.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	dst, dstStore, pub := newTestService(now)
	if _, err := dst.Submit(ctx, NewSession(), input("Old", core.NewDate(2020, 5, 5))); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	pub.sent = nil

	n, err := dst.Import(ctx, data)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Import() = %d, want 2", n)
	}
	again, _ := dst.Export(ctx)
	if string(again) != string(data) {
		t.Errorf("export after import differs:\n%s\n%s", data, again)
	}
	loans, _ := dstStore.LoadLoans(ctx)
	if !loans[1].CollectedIn(core.MonthKeyOf(now)) {
		t.Errorf("collection state lost: %+v", loans[1])
	}
	if len(pub.sent) == 0 || pub.sent[len(pub.sent)-1].op != amqp.OpUpsert {
		t.Errorf("published = %+v", pub.sent)
	}

	if _, err := dst.Import(ctx, []byte(`{"nope":true}`)); !errors.Is(err, backup.ErrInvalidData) {
		t.Errorf("Import(garbage) error = %v, want ErrInvalidData", err)
	}
	future := `[{"id":1,"name":"F","amount":1,"interest":0,"startDate":"2024-01-01","dueDay":1,"lastCollectedMonth":"2024-3"}]`
	if _, err := dst.Import(ctx, []byte(future)); !errors.Is(err, backup.ErrInvalidData) {
		t.Errorf("Import(future collection) error = %v, want ErrInvalidData", err)
	}
	if after, _ := dst.Export(ctx); string(after) != string(data) {
		t.Errorf("invalid import modified the collection")
	}
}

func TestEditSession(t *testing.T) {
	if _, editing := NewSession().LoanID(); editing {
		t.Error("new session should not be editing")
	}
	if _, editing := (EditSession{}).LoanID(); editing {
		t.Error("zero session should not be editing")
	}
	id, editing := EditLoan(5).LoanID()
	if !editing || id != 5 {
		t.Errorf("EditLoan(5).LoanID() = %d, %v", id, editing)
	}
}
