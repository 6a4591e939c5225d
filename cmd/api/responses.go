package main

import (
	"strings"
	"time"

	"escrowflow/auth"
	"escrowflow/contract"
	"escrowflow/document"
	"escrowflow/escrow"
	"escrowflow/milestone"
	"escrowflow/party"
	"escrowflow/payment"
	"escrowflow/pkg/validate"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	FullName    string    `json:"full_name"`
	IsActive    bool      `json:"is_active"`
	IsSuperuser bool      `json:"is_superuser"`
	DateJoined  time.Time `json:"date_joined"`
}

func newUserResponse(p party.Profile) userResponse {
	return userResponse{
		ID:          p.ID,
		Email:       p.Email,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		FullName:    p.FullName(),
		IsActive:    p.IsActive,
		IsSuperuser: p.IsSuperuser,
		DateJoined:  p.DateJoined,
	}
}

func profileOf(u auth.User) party.Profile {
	return party.Profile{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		DateJoined:  u.DateJoined,
	}
}

type contractResponse struct {
	ID                    string             `json:"id"`
	IntendedParent        string             `json:"intended_parent"`
	Surrogate             string             `json:"surrogate"`
	IntendedParentDetails userResponse       `json:"intended_parent_details"`
	SurrogateDetails      userResponse       `json:"surrogate_details"`
	Title                 string             `json:"title"`
	Description           string             `json:"description"`
	ContractAmount        string             `json:"contract_amount"`
	Status                contract.Status    `json:"status"`
	StartDate             *string            `json:"start_date"`
	EndDate               *string            `json:"end_date"`
	CreatedBy             *string            `json:"created_by"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
	Documents             []documentResponse `json:"documents,omitempty"`
}

func newContractResponse(c contract.Contract) contractResponse {
	return contractResponse{
		ID:                    c.ID,
		IntendedParent:        c.IntendedParent.ID,
		Surrogate:             c.Surrogate.ID,
		IntendedParentDetails: newUserResponse(c.IntendedParent),
		SurrogateDetails:      newUserResponse(c.Surrogate),
		Title:                 c.Title,
		Description:           c.Description,
		ContractAmount:        money(c.Amount),
		Status:                c.Status,
		StartDate:             formatDate(c.StartDate),
		EndDate:               formatDate(c.EndDate),
		CreatedBy:             c.CreatedBy,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

type milestoneResponse struct {
	ID              string           `json:"id"`
	Contract        string           `json:"contract"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Amount          string           `json:"amount"`
	Status          milestone.Status `json:"status"`
	DueDate         *string          `json:"due_date"`
	CompletedDate   *string          `json:"completed_date"`
	CompletionNotes string           `json:"completion_notes"`
	CompletedBy     *string          `json:"completed_by"`
	Order           int              `json:"order"`
	CreatedBy       *string          `json:"created_by"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func newMilestoneResponse(m milestone.Milestone) milestoneResponse {
	return milestoneResponse{
		ID:              m.ID,
		Contract:        m.ContractID,
		Title:           m.Title,
		Description:     m.Description,
		Amount:          money(m.Amount),
		Status:          m.Status,
		DueDate:         formatDate(m.DueDate),
		CompletedDate:   formatDate(m.CompletedDate),
		CompletionNotes: m.CompletionNotes,
		CompletedBy:     m.CompletedBy,
		Order:           m.Order,
		CreatedBy:       m.CreatedBy,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

type paymentResponse struct {
	ID            string         `json:"id"`
	Contract      string         `json:"contract"`
	Payer         string         `json:"payer"`
	Payee         string         `json:"payee"`
	Amount        string         `json:"amount"`
	PaymentType   payment.Type   `json:"payment_type"`
	Status        payment.Status `json:"status"`
	TransactionID *string        `json:"transaction_id"`
	PaymentMethod string         `json:"payment_method"`
	PaymentDate   *time.Time     `json:"payment_date"`
	Description   string         `json:"description"`
	Notes         string         `json:"notes"`
	CreatedBy     *string        `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func newPaymentResponse(p payment.Payment) paymentResponse {
	return paymentResponse{
		ID:            p.ID,
		Contract:      p.ContractID,
		Payer:         p.PayerID,
		Payee:         p.PayeeID,
		Amount:        money(p.Amount),
		PaymentType:   p.Type,
		Status:        p.Status,
		TransactionID: p.TransactionID,
		PaymentMethod: p.PaymentMethod,
		PaymentDate:   p.PaymentDate,
		Description:   p.Description,
		Notes:         p.Notes,
		CreatedBy:     p.CreatedBy,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

type escrowResponse struct {
	ID             string    `json:"id"`
	Contract       string    `json:"contract"`
	Balance        string    `json:"balance"`
	TotalDeposited string    `json:"total_deposited"`
	TotalReleased  string    `json:"total_released"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newEscrowResponse(a escrow.Account) escrowResponse {
	return escrowResponse{
		ID:             a.ID,
		Contract:       a.ContractID,
		Balance:        money(a.Balance),
		TotalDeposited: money(a.TotalDeposited),
		TotalReleased:  money(a.TotalReleased),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

type entryResponse struct {
	ID             int64            `json:"id"`
	Kind           escrow.EntryKind `json:"kind"`
	Amount         string           `json:"amount"`
	BalanceAfter   string           `json:"balance_after"`
	Actor          string           `json:"actor"`
	IdempotencyKey *string          `json:"idempotency_key"`
	CreatedAt      time.Time        `json:"created_at"`
}

func newEntryResponse(e escrow.Entry) entryResponse {
	return entryResponse{
		ID:             e.ID,
		Kind:           e.Kind,
		Amount:         money(e.Amount),
		BalanceAfter:   money(e.BalanceAfter),
		Actor:          e.ActorID,
		IdempotencyKey: e.IdempotencyKey,
		CreatedAt:      e.CreatedAt,
	}
}

type documentResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	File        string    `json:"file"`
	UploadedBy  *string   `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

func newDocumentResponse(d document.Document) documentResponse {
	return documentResponse{
		ID:          d.ID,
		Title:       d.Title,
		FileName:    d.FileName,
		ContentType: d.ContentType,
		Size:        d.Size,
		File:        d.URL,
		UploadedBy:  d.UploadedBy,
		UploadedAt:  d.UploadedAt,
	}
}

func mapSlice[T, R any](in []T, f func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

// parseDate reads an optional YYYY-MM-DD value, recording a field error on v
// when it does not parse.
func parseDate(v validate.Errors, field string, raw *string) *time.Time {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(*raw))
	if err != nil {
		v.Add(field, "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		return nil
	}
	return &t
}
