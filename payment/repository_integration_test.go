package payment

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

// TestPaymentVisibility_Integration connects to a real PostgreSQL via DATABASE_URL
// and checks that payments are visible to contract parties, payer and payee only.
func TestPaymentVisibility_Integration(t *testing.T) {
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

	var parentID, surrogateID, agencyID, strangerID, contractID string
	stamp := time.Now().UnixNano()
	for _, u := range []struct {
		dst   *string
		email string
	}{
		{&parentID, fmt.Sprintf("pparent+%d@example.com", stamp)},
		{&surrogateID, fmt.Sprintf("psurrogate+%d@example.com", stamp)},
		{&agencyID, fmt.Sprintf("pagency+%d@example.com", stamp)},
		{&strangerID, fmt.Sprintf("pstranger+%d@example.com", stamp)},
	} {
		if err := pool.QueryRow(ctx, `INSERT INTO users (email) VALUES ($1) RETURNING id`, u.email).Scan(u.dst); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO contracts (intended_parent_id, surrogate_id, title, contract_amount, created_by)
		VALUES ($1, $2, 'Payments', 1000, $1) RETURNING id
	`, parentID, surrogateID).Scan(&contractID); err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM contracts WHERE id = $1`, contractID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2, $3, $4)`, parentID, surrogateID, agencyID, strangerID)
	})

	svc := NewService(NewRepository(pool))
	parent := access.Caller{UserID: parentID}
	surrogate := access.Caller{UserID: surrogateID}
	agency := access.Caller{UserID: agencyID}
	stranger := access.Caller{UserID: strangerID}
	amount := decimal.RequireFromString("1200.00")
	txID := fmt.Sprintf("itest-tx-%d", stamp)

	p, err := svc.Create(ctx, parent, CreateParams{
		ContractID:    contractID,
		PayerID:       parentID,
		PayeeID:       agencyID,
		Amount:        &amount,
		Type:          "deposit",
		TransactionID: &txID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Status != StatusPending || p.Type != TypeDeposit || p.PayeeID != agencyID {
		t.Fatalf("unexpected payment: %+v", p)
	}

	_, err = svc.Create(ctx, parent, CreateParams{
		ContractID: contractID, PayerID: parentID, PayeeID: agencyID, Amount: &amount, Type: "final", TransactionID: &txID,
	})
	if fields, ok := validate.As(err); !ok || fields["transaction_id"] == "" {
		t.Fatalf("expected transaction_id field error, got %v", err)
	}
	_, err = svc.Create(ctx, stranger, CreateParams{
		ContractID: contractID, PayerID: strangerID, PayeeID: strangerID, Amount: &amount, Type: "deposit",
	})
	if fields, ok := validate.As(err); !ok || fields["contract"] == "" {
		t.Fatalf("expected contract field error for non-party, got %v", err)
	}

	sees := func(caller access.Caller) bool {
		list, err := svc.List(ctx, caller, contractID)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, item := range list {
			if item.ID == p.ID {
				return true
			}
		}
		return false
	}
	if !sees(parent) || !sees(surrogate) {
		t.Fatal("contract parties must see the payment")
	}
	if !sees(agency) {
		t.Fatal("the payee must see the payment without being a contract party")
	}
	if sees(stranger) {
		t.Fatal("an unrelated user must not see the payment")
	}

	if _, err := svc.Get(ctx, agency, p.ID); err != nil {
		t.Fatalf("payee get: %v", err)
	}
	if _, err := svc.Get(ctx, stranger, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stranger, got %v", err)
	}

	got, err := svc.UpdateStatus(ctx, agency, p.ID, "completed")
	if err != nil {
		t.Fatalf("payee status update: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if _, err := svc.UpdateStatus(ctx, stranger, p.ID, "refunded"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for stranger status update, got %v", err)
	}
}
