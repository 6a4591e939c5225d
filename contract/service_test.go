package contract

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"escrowflow/access"
	"escrowflow/pkg/validate"

	"github.com/shopspring/decimal"
)

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"draft", "pending", "active", "completed", "cancelled"} {
		if _, err := ParseStatus(s); err != nil {
			t.Fatalf("status %q: unexpected error %v", s, err)
		}
	}
	for _, s := range []string{"", "bogus", "Active"} {
		if _, err := ParseStatus(s); !errors.Is(err, ErrInvalidStatus) {
			t.Fatalf("status %q: expected ErrInvalidStatus, got %v", s, err)
		}
	}
}

func TestService_CreateDefaultsToDraft(t *testing.T) {
	repo := newFakeStore()
	svc := NewService(repo)
	amount := decimal.RequireFromString("50000.00")

	got, err := svc.Create(context.Background(), access.Caller{UserID: "p1"}, CreateParams{
		IntendedParentID: "p1",
		SurrogateID:      "s1",
		Title:            "  Journey  ",
		Amount:           &amount,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Status != StatusDraft {
		t.Fatalf("expected draft, got %s", got.Status)
	}
	if got.Title != "Journey" {
		t.Fatalf("expected trimmed title, got %q", got.Title)
	}
	if got.CreatedBy == nil || *got.CreatedBy != "p1" {
		t.Fatalf("expected creator p1, got %v", got.CreatedBy)
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc := NewService(newFakeStore())
	negative := decimal.NewFromInt(-1)

	_, err := svc.Create(context.Background(), access.Caller{UserID: "p1"}, CreateParams{
		Amount: &negative,
		Status: "bogus",
	})
	fields, ok := validate.As(err)
	if !ok {
		t.Fatalf("expected field errors, got %v", err)
	}
	for _, f := range []string{"intended_parent", "surrogate", "title", "contract_amount", "status"} {
		if fields[f] == "" {
			t.Fatalf("expected error for %s, got %v", f, fields)
		}
	}
}

func TestService_UpdateKeepsDatesOrdered(t *testing.T) {
	repo := newFakeStore()
	svc := NewService(repo)
	caller := access.Caller{UserID: "p1"}
	amount := decimal.NewFromInt(100)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)

	c, err := svc.Create(context.Background(), caller, CreateParams{
		IntendedParentID: "p1", SurrogateID: "s1", Title: "Dated", Amount: &amount,
		StartDate: &start, EndDate: &end,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.Update(context.Background(), caller, c.ID, UpdateParams{EndDate: &early})
	if fields, ok := validate.As(err); !ok || fields["end_date"] == "" {
		t.Fatalf("expected end_date error against stored start date, got %v", err)
	}

	late := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.Update(context.Background(), caller, c.ID, UpdateParams{StartDate: &late})
	if fields, ok := validate.As(err); !ok || fields["end_date"] == "" {
		t.Fatalf("expected end_date error against stored end date, got %v", err)
	}

	got, err := svc.Update(context.Background(), caller, c.ID, UpdateParams{StartDate: &early})
	if err != nil {
		t.Fatalf("update start: %v", err)
	}
	if !got.StartDate.Equal(early) {
		t.Fatalf("expected start %s, got %v", early, got.StartDate)
	}

	if _, err := svc.Update(context.Background(), access.Caller{UserID: "x"}, c.ID, UpdateParams{StartDate: &early}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a non-party, got %v", err)
	}
}

func TestService_UpdateStatusEnumOnly(t *testing.T) {
	repo := newFakeStore()
	svc := NewService(repo)
	caller := access.Caller{UserID: "p1"}
	amount := decimal.NewFromInt(100)

	c, err := svc.Create(context.Background(), caller, CreateParams{IntendedParentID: "p1", SurrogateID: "s1", Title: "T", Amount: &amount, Status: "completed"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.UpdateStatus(context.Background(), caller, c.ID, "bogus"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if repo.contracts[c.ID].Status != StatusCompleted {
		t.Fatal("rejected status must not change the record")
	}

	// no transition graph: completed may go back to draft
	got, err := svc.UpdateStatus(context.Background(), caller, c.ID, "draft")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if got.Status != StatusDraft {
		t.Fatalf("expected draft, got %s", got.Status)
	}
}

func TestService_VisibilityScoping(t *testing.T) {
	repo := newFakeStore()
	svc := NewService(repo)
	amount := decimal.NewFromInt(100)

	c, err := svc.Create(context.Background(), access.Caller{UserID: "p1"}, CreateParams{IntendedParentID: "p1", SurrogateID: "s1", Title: "T", Amount: &amount})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stranger := access.Caller{UserID: "x"}
	if _, err := svc.Get(context.Background(), stranger, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stranger, got %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), stranger, c.ID, "active"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stranger, got %v", err)
	}
	list, _ := svc.List(context.Background(), stranger)
	if len(list) != 0 {
		t.Fatalf("stranger should see nothing, got %d", len(list))
	}

	list, _ = svc.List(context.Background(), access.Caller{UserID: "s1"})
	if len(list) != 1 {
		t.Fatalf("surrogate should see the contract, got %d", len(list))
	}
	if _, err := svc.Get(context.Background(), access.Caller{UserID: "admin", Superuser: true}, c.ID); err != nil {
		t.Fatalf("superuser get: %v", err)
	}
}

type fakeStore struct {
	contracts map[string]Contract
	order     []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{contracts: make(map[string]Contract)}
}

func (f *fakeStore) Create(ctx context.Context, createdBy string, params CreateParams, status Status) (Contract, error) {
	id := fmt.Sprintf("c%d", len(f.order)+1)
	c := Contract{
		ID:          id,
		Title:       params.Title,
		Description: params.Description,
		Amount:      *params.Amount,
		Status:      status,
		StartDate:   params.StartDate,
		EndDate:     params.EndDate,
		CreatedBy:   &createdBy,
	}
	c.IntendedParent.ID = params.IntendedParentID
	c.Surrogate.ID = params.SurrogateID
	f.contracts[id] = c
	f.order = append(f.order, id)
	return c, nil
}

func (f *fakeStore) List(ctx context.Context, caller access.Caller) ([]Contract, error) {
	var out []Contract
	for _, id := range f.order {
		c := f.contracts[id]
		if caller.IsParty(c.IntendedParent.ID, c.Surrogate.ID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, caller access.Caller, id string) (Contract, error) {
	c, ok := f.contracts[id]
	if !ok || !caller.IsParty(c.IntendedParent.ID, c.Surrogate.ID) {
		return Contract{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) Update(ctx context.Context, caller access.Caller, id string, params UpdateParams) (Contract, error) {
	c, err := f.Get(ctx, caller, id)
	if err != nil {
		return Contract{}, err
	}
	if params.Title != nil {
		c.Title = *params.Title
	}
	if params.Amount != nil {
		c.Amount = *params.Amount
	}
	if params.StartDate != nil {
		c.StartDate = params.StartDate
	}
	if params.EndDate != nil {
		c.EndDate = params.EndDate
	}
	f.contracts[id] = c
	return c, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, caller access.Caller, id string, status Status) (Contract, error) {
	c, err := f.Get(ctx, caller, id)
	if err != nil {
		return Contract{}, err
	}
	c.Status = status
	f.contracts[id] = c
	return c, nil
}
