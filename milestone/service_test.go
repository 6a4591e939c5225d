package milestone

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"escrowflow/access"
	"escrowflow/pkg/validate"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2024, 5, 17, 22, 30, 0, 0, time.FixedZone("PDT", -7*3600))

func newTestService(repo Store) *Service {
	return NewService(repo).WithClock(func() time.Time { return fixedNow })
}

func TestService_CreateAssignsNextOrder(t *testing.T) {
	repo := newFakeStore(map[string][2]string{"c1": {"p1", "s1"}})
	svc := newTestService(repo)
	caller := access.Caller{UserID: "p1"}
	amount := decimal.NewFromInt(1000)

	first, err := svc.Create(context.Background(), caller, CreateParams{ContractID: "c1", Title: "Transfer", Amount: &amount})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := svc.Create(context.Background(), caller, CreateParams{ContractID: "c1", Title: "Heartbeat", Amount: &amount})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.Order != 0 || second.Order != 1 {
		t.Fatalf("expected orders 0 and 1, got %d and %d", first.Order, second.Order)
	}
	if first.Status != StatusPending {
		t.Fatalf("expected pending, got %s", first.Status)
	}

	dup := 1
	_, err = svc.Create(context.Background(), caller, CreateParams{ContractID: "c1", Title: "Dup", Amount: &amount, Order: &dup})
	if !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}
}

func TestService_OrderBounds(t *testing.T) {
	repo := newFakeStore(map[string][2]string{"c1": {"p1", "s1"}})
	svc := newTestService(repo)
	caller := access.Caller{UserID: "p1"}
	amount := decimal.NewFromInt(10)

	for _, order := range []int{-1, math.MaxInt32 + 1} {
		o := order
		_, err := svc.Create(context.Background(), caller, CreateParams{ContractID: "c1", Title: "T", Amount: &amount, Order: &o})
		if fields, ok := validate.As(err); !ok || fields["order"] == "" {
			t.Fatalf("create order %d: expected order field error, got %v", order, err)
		}
		_, err = svc.Update(context.Background(), caller, "m1", UpdateParams{Order: &o})
		if fields, ok := validate.As(err); !ok || fields["order"] == "" {
			t.Fatalf("update order %d: expected order field error, got %v", order, err)
		}
	}

	top := math.MaxInt32
	if _, err := svc.Create(context.Background(), caller, CreateParams{ContractID: "c1", Title: "T", Amount: &amount, Order: &top}); err != nil {
		t.Fatalf("largest order must be accepted: %v", err)
	}
}

func TestService_CreateOnInvisibleContract(t *testing.T) {
	repo := newFakeStore(map[string][2]string{"c1": {"p1", "s1"}})
	svc := newTestService(repo)
	amount := decimal.NewFromInt(10)

	_, err := svc.Create(context.Background(), access.Caller{UserID: "x"}, CreateParams{ContractID: "c1", Title: "T", Amount: &amount})
	fields, ok := validate.As(err)
	if !ok || fields["contract"] == "" {
		t.Fatalf("expected contract field error, got %v", err)
	}
}

func TestService_UpdateStatusCompletionAutoFill(t *testing.T) {
	repo := newFakeStore(map[string][2]string{"c1": {"p1", "s1"}})
	svc := newTestService(repo)
	caller := access.Caller{UserID: "s1"}
	amount := decimal.NewFromInt(10)

	m, err := svc.Create(context.Background(), caller, CreateParams{ContractID: "c1", Title: "T", Amount: &amount})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.UpdateStatus(context.Background(), caller, m.ID, "completed")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	want := time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC)
	if got.CompletedDate == nil || !got.CompletedDate.Equal(want) {
		t.Fatalf("expected completed date %v, got %v", want, got.CompletedDate)
	}
	if got.CompletedBy == nil || *got.CompletedBy != "s1" {
		t.Fatalf("expected completer s1, got %v", got.CompletedBy)
	}

	// a second completion by someone else keeps the original record
	got, err = svc.UpdateStatus(context.Background(), access.Caller{UserID: "p1"}, m.ID, "completed")
	if err != nil {
		t.Fatalf("update status again: %v", err)
	}
	if *got.CompletedBy != "s1" {
		t.Fatalf("completer must not change, got %s", *got.CompletedBy)
	}

	if _, err := svc.UpdateStatus(context.Background(), caller, m.ID, "bogus"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestService_UpdateStatusNonCompletedLeavesDateAlone(t *testing.T) {
	repo := newFakeStore(map[string][2]string{"c1": {"p1", "s1"}})
	svc := newTestService(repo)
	caller := access.Caller{UserID: "p1"}
	amount := decimal.NewFromInt(10)

	m, _ := svc.Create(context.Background(), caller, CreateParams{ContractID: "c1", Title: "T", Amount: &amount})
	got, err := svc.UpdateStatus(context.Background(), caller, m.ID, "in_progress")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if got.CompletedDate != nil || got.CompletedBy != nil {
		t.Fatalf("expected no completion fields, got %+v", got)
	}
}

func TestService_CompleteOverwrites(t *testing.T) {
	repo := newFakeStore(map[string][2]string{"c1": {"p1", "s1"}})
	svc := newTestService(repo)
	amount := decimal.NewFromInt(10)

	m, _ := svc.Create(context.Background(), access.Caller{UserID: "p1"}, CreateParams{ContractID: "c1", Title: "T", Amount: &amount})
	if _, err := svc.UpdateStatus(context.Background(), access.Caller{UserID: "p1"}, m.ID, "completed"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, err := svc.Complete(context.Background(), access.Caller{UserID: "s1"}, m.ID, "all good")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if *got.CompletedBy != "s1" || got.CompletionNotes != "all good" || got.Status != StatusCompleted {
		t.Fatalf("unexpected milestone: %+v", got)
	}

	if _, err := svc.Complete(context.Background(), access.Caller{UserID: "x"}, m.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stranger, got %v", err)
	}
}

type fakeStore struct {
	parties    map[string][2]string
	milestones map[string]Milestone
	seq        int
}

func newFakeStore(parties map[string][2]string) *fakeStore {
	return &fakeStore{parties: parties, milestones: make(map[string]Milestone)}
}

func (f *fakeStore) visible(caller access.Caller, contractID string) bool {
	p, ok := f.parties[contractID]
	return ok && caller.IsParty(p[0], p[1])
}

func (f *fakeStore) Create(ctx context.Context, caller access.Caller, params CreateParams) (Milestone, error) {
	if !f.visible(caller, params.ContractID) {
		return Milestone{}, ErrContractNotFound
	}
	order := 0
	for _, m := range f.milestones {
		if m.ContractID == params.ContractID && m.Order >= order {
			order = m.Order + 1
		}
	}
	if params.Order != nil {
		order = *params.Order
		for _, m := range f.milestones {
			if m.ContractID == params.ContractID && m.Order == order {
				return Milestone{}, ErrDuplicateOrder
			}
		}
	}
	f.seq++
	m := Milestone{
		ID:         fmt.Sprintf("m%d", f.seq),
		ContractID: params.ContractID,
		Title:      params.Title,
		Amount:     *params.Amount,
		Status:     StatusPending,
		Order:      order,
	}
	f.milestones[m.ID] = m
	return m, nil
}

func (f *fakeStore) List(ctx context.Context, caller access.Caller, contractID string) ([]Milestone, error) {
	var out []Milestone
	for _, m := range f.milestones {
		if f.visible(caller, m.ContractID) && (contractID == "" || m.ContractID == contractID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, caller access.Caller, id string) (Milestone, error) {
	m, ok := f.milestones[id]
	if !ok || !f.visible(caller, m.ContractID) {
		return Milestone{}, ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) Update(ctx context.Context, caller access.Caller, id string, params UpdateParams) (Milestone, error) {
	m, err := f.Get(ctx, caller, id)
	if err != nil {
		return Milestone{}, err
	}
	if params.Title != nil {
		m.Title = *params.Title
	}
	f.milestones[id] = m
	return m, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, caller access.Caller, id string, change StatusChange) (Milestone, error) {
	m, err := f.Get(ctx, caller, id)
	if err != nil {
		return Milestone{}, err
	}
	m.Status = change.Status
	if change.Status == StatusCompleted && m.CompletedDate == nil {
		d, by := change.Today, change.ActorID
		m.CompletedDate, m.CompletedBy = &d, &by
	}
	f.milestones[id] = m
	return m, nil
}

func (f *fakeStore) Complete(ctx context.Context, caller access.Caller, id string, c Completion) (Milestone, error) {
	m, err := f.Get(ctx, caller, id)
	if err != nil {
		return Milestone{}, err
	}
	d, by := c.Date, c.ActorID
	m.Status, m.CompletedDate, m.CompletedBy, m.CompletionNotes = StatusCompleted, &d, &by, c.Notes
	f.milestones[id] = m
	return m, nil
}
