package contract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"escrowflow/access"
	"escrowflow/migrations"
	"escrowflow/pkg/validate"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TestContractVisibility_Integration connects to a real PostgreSQL via DATABASE_URL
// and checks party scoping, the paired escrow account and date ordering on update.
func TestContractVisibility_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	var parentID, surrogateID, strangerID string
	stamp := time.Now().UnixNano()
	for _, u := range []struct {
		dst   *string
		email string
	}{
		{&parentID, fmt.Sprintf("cparent+%d@example.com", stamp)},
		{&surrogateID, fmt.Sprintf("csurrogate+%d@example.com", stamp)},
		{&strangerID, fmt.Sprintf("cstranger+%d@example.com", stamp)},
	} {
		if err := pool.QueryRow(ctx, `INSERT INTO users (email) VALUES ($1) RETURNING id`, u.email).Scan(u.dst); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM contracts WHERE intended_parent_id = $1`, parentID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2, $3)`, parentID, surrogateID, strangerID)
	})

	svc := NewService(NewRepository(pool))
	parent := access.Caller{UserID: parentID}
	surrogate := access.Caller{UserID: surrogateID}
	stranger := access.Caller{UserID: strangerID}
	admin := access.Caller{UserID: strangerID, Superuser: true}

	amount := decimal.RequireFromString("50000.00")
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	c, err := svc.Create(ctx, parent, CreateParams{
		IntendedParentID: parentID,
		SurrogateID:      surrogateID,
		Title:            "Integration journey",
		Amount:           &amount,
		StartDate:        &start,
		EndDate:          &end,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Status != StatusDraft || c.IntendedParent.Email == "" || c.Surrogate.ID != surrogateID {
		t.Fatalf("unexpected contract: %+v", c)
	}

	var accounts int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM escrow_accounts WHERE contract_id = $1`, c.ID).Scan(&accounts); err != nil {
		t.Fatalf("count accounts: %v", err)
	}
	if accounts != 1 {
		t.Fatalf("expected one escrow account, got %d", accounts)
	}

	contains := func(caller access.Caller) bool {
		list, err := svc.List(ctx, caller)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, item := range list {
			if item.ID == c.ID {
				return true
			}
		}
		return false
	}
	if !contains(parent) || !contains(surrogate) || !contains(admin) {
		t.Fatal("parties and superusers must list the contract")
	}
	if contains(stranger) {
		t.Fatal("non-party must not list the contract")
	}

	if _, err := svc.Get(ctx, stranger, c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stranger, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, stranger, c.ID, "active"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stranger status update, got %v", err)
	}

	got, err := svc.UpdateStatus(ctx, surrogate, c.ID, "active")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if got.Status != StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.Update(ctx, parent, c.ID, UpdateParams{EndDate: &early}); err == nil {
		t.Fatal("expected end date before stored start date to be rejected")
	} else if fields, ok := validate.As(err); !ok || fields["end_date"] == "" {
		t.Fatalf("expected end_date field error, got %v", err)
	}

	title := "Renamed"
	got, err = svc.Update(ctx, parent, c.ID, UpdateParams{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != "Renamed" || !got.Amount.Equal(amount) {
		t.Fatalf("partial update must keep other fields: %+v", got)
	}

	missing := "00000000-0000-0000-0000-000000000000"
	_, err = svc.Create(ctx, parent, CreateParams{IntendedParentID: parentID, SurrogateID: missing, Title: "X", Amount: &amount})
	if !errors.Is(err, ErrUnknownParty) {
		t.Fatalf("expected ErrUnknownParty, got %v", err)
	}
}
