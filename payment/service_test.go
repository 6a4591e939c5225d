package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"escrowflow/access"
	"escrowflow/pkg/validate"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_CreateValidation(t *testing.T) {
	svc := NewService(newFakeStore())
	caller := access.Caller{UserID: "p1"}

	for _, raw := range []string{"0", "-5"} {
		amount := decimal.RequireFromString(raw)
		_, err := svc.Create(context.Background(), caller, CreateParams{
			ContractID: "c1", PayerID: "p1", PayeeID: "s1", Amount: &amount, Type: "deposit",
		})
		fields, ok := validate.As(err)
		require.True(t, ok, "amount %s: expected field errors, got %v", raw, err)
		assert.Contains(t, fields, "amount")
	}

	amount := decimal.NewFromInt(10)
	_, err := svc.Create(context.Background(), caller, CreateParams{
		ContractID: "c1", PayerID: "p1", PayeeID: "s1", Amount: &amount, Type: "gift",
	})
	fields, ok := validate.As(err)
	require.True(t, ok)
	assert.Contains(t, fields, "payment_type")
}

func TestService_CreateStartsPending(t *testing.T) {
	svc := NewService(newFakeStore())
	amount := decimal.RequireFromString("250.50")

	p, err := svc.Create(context.Background(), access.Caller{UserID: "p1"}, CreateParams{
		ContractID: "c1", PayerID: "p1", PayeeID: "s1", Amount: &amount, Type: "milestone",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, TypeMilestone, p.Type)
	assert.True(t, p.Amount.Equal(amount))
}

func TestService_CreateDuplicateTransaction(t *testing.T) {
	svc := NewService(newFakeStore())
	amount := decimal.NewFromInt(10)
	tx := "txn-1"
	params := CreateParams{ContractID: "c1", PayerID: "p1", PayeeID: "s1", Amount: &amount, Type: "deposit", TransactionID: &tx}

	_, err := svc.Create(context.Background(), access.Caller{UserID: "p1"}, params)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), access.Caller{UserID: "p1"}, params)
	fields, ok := validate.As(err)
	require.True(t, ok, "expected field error, got %v", err)
	assert.Contains(t, fields, "transaction_id")
}

func TestService_CreateOnInvisibleContract(t *testing.T) {
	svc := NewService(newFakeStore())
	amount := decimal.NewFromInt(10)

	_, err := svc.Create(context.Background(), access.Caller{UserID: "x"}, CreateParams{
		ContractID: "c1", PayerID: "x", PayeeID: "s1", Amount: &amount, Type: "deposit",
	})
	fields, ok := validate.As(err)
	require.True(t, ok)
	assert.Contains(t, fields, "contract")
}

func TestService_UpdateStatus(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	caller := access.Caller{UserID: "p1"}
	amount := decimal.NewFromInt(10)

	p, err := svc.Create(context.Background(), caller, CreateParams{ContractID: "c1", PayerID: "p1", PayeeID: "s1", Amount: &amount, Type: "deposit"})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), caller, p.ID, "bogus")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, StatusPending, store.payments[p.ID].Status)

	got, err := svc.UpdateStatus(context.Background(), caller, p.ID, "refunded")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, got.Status)
}

func TestService_PayeeOutsideContractSeesPayment(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)
	amount := decimal.NewFromInt(10)

	p, err := svc.Create(context.Background(), access.Caller{UserID: "p1"}, CreateParams{ContractID: "c1", PayerID: "p1", PayeeID: "clinic", Amount: &amount, Type: "milestone"})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), access.Caller{UserID: "clinic"}, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = svc.Get(context.Background(), access.Caller{UserID: "stranger"}, p.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// fakeStore knows a single contract c1 between p1 and s1.
type fakeStore struct {
	payments map[string]Payment
	txIDs    map[string]bool
	seq      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{payments: make(map[string]Payment), txIDs: make(map[string]bool)}
}

func (f *fakeStore) visible(caller access.Caller, p Payment) bool {
	return caller.IsParty("p1", "s1") || caller.UserID == p.PayerID || caller.UserID == p.PayeeID
}

func (f *fakeStore) Create(ctx context.Context, caller access.Caller, params CreateParams, typ Type) (Payment, error) {
	if params.ContractID != "c1" || !caller.IsParty("p1", "s1") {
		return Payment{}, ErrContractNotFound
	}
	if params.TransactionID != nil {
		if f.txIDs[*params.TransactionID] {
			return Payment{}, ErrDuplicateTransaction
		}
		f.txIDs[*params.TransactionID] = true
	}
	f.seq++
	p := Payment{
		ID:            fmt.Sprintf("pay-%d", f.seq),
		ContractID:    params.ContractID,
		PayerID:       params.PayerID,
		PayeeID:       params.PayeeID,
		Amount:        *params.Amount,
		Type:          typ,
		Status:        StatusPending,
		TransactionID: params.TransactionID,
	}
	f.payments[p.ID] = p
	return p, nil
}

func (f *fakeStore) List(ctx context.Context, caller access.Caller, contractID string) ([]Payment, error) {
	var out []Payment
	for _, p := range f.payments {
		if f.visible(caller, p) && (contractID == "" || p.ContractID == contractID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, caller access.Caller, id string) (Payment, error) {
	p, ok := f.payments[id]
	if !ok || !f.visible(caller, p) {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, caller access.Caller, id string, status Status) (Payment, error) {
	p, err := f.Get(ctx, caller, id)
	if err != nil {
		return Payment{}, err
	}
	p.Status = status
	f.payments[id] = p
	return p, nil
}
