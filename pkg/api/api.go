// Package api defines the core types and interfaces shared by the
// synchronization components: the source-side ledger records, the target-side
// practice-management records, and the Source/Target contracts the reconciler
// drives a pass against.
package api

import (
	"context"

	"github.com/shopspring/decimal"
)

// Ref is a reference from one source record to another, carried by invoices
// (customer) and invoice lines (account, item).
type Ref struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

// SourceCustomer is a customer record as supplied by the ledger provider.
// Email may be empty; ID may be empty for malformed records, in which case the
// customer cannot be mapped and is skipped.
type SourceCustomer struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// SourceAccount is a ledger account. Only accounts whose AccountType is
// "expense" (compared case-insensitively) participate in a pass, and then only
// to supply a human-readable category label.
type SourceAccount struct {
	ID          string `json:"id"`
	FullName    string `json:"full_name"`
	AccountType string `json:"account_type"`
}

// SourceInvoice is an invoice with its ordered line items.
type SourceInvoice struct {
	ID              string       `json:"id"`
	Customer        *Ref         `json:"customer"`
	TransactionDate string       `json:"transaction_date"`
	Lines           []SourceLine `json:"lines"`
}

// ClassKind tags the classification of an invoice line.
type ClassKind int

const (
	// ClassUnknown marks a line with neither an account nor an item
	// reference. Such lines never reconcile.
	ClassUnknown ClassKind = iota
	// ClassAccount marks a line carrying an account reference.
	ClassAccount
	// ClassItem marks a line carrying an item reference.
	ClassItem
)

// Classification is the two-case variant an invoice line is reduced to at
// ingestion. Exactly one of AccountID or ItemName is meaningful, selected by
// Kind.
type Classification struct {
	Kind ClassKind

	// AccountID is the referenced account's source id. Set for ClassAccount.
	AccountID string
	// ItemName is the referenced item's display name. Set for ClassItem.
	ItemName string
}

// Classify reduces a line's raw account/item references to a Classification.
// An account reference wins when both are present; the ledger provider never
// emits both on the same line.
func Classify(accountRef, item *Ref) Classification {
	switch {
	case accountRef != nil && accountRef.ID != "":
		return Classification{Kind: ClassAccount, AccountID: accountRef.ID}
	case item != nil:
		return Classification{Kind: ClassItem, ItemName: item.FullName}
	default:
		return Classification{Kind: ClassUnknown}
	}
}

// SourceLine is one invoice line item. ID is empty when the ledger omits one;
// Amount is zero when absent or textually zero, both of which exclude the line
// from reconciliation.
type SourceLine struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Class       Classification  `json:"-"`
}

// ExpenseSyncKey is the composite identity of one invoice line for
// deduplication: "{invoice_id}:{line_id}". One target expense exists per
// distinct key across the lifetime of the mapping store.
type ExpenseSyncKey string

// NewExpenseSyncKey builds the composite key for a line of an invoice.
func NewExpenseSyncKey(invoiceID, lineID string) ExpenseSyncKey {
	return ExpenseSyncKey(invoiceID + ":" + lineID)
}

// Contact is a target-system contact record.
type Contact struct {
	PersonID    string   `json:"personId"`
	FullName    string   `json:"fullName"`
	Email       string   `json:"email,omitempty"`
	PersonTypes []string `json:"personTypes,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

// NewContact is the payload for creating a target-system contact.
type NewContact struct {
	FullName    string   `json:"fullName"`
	Email       string   `json:"email"`
	PersonTypes []string `json:"personTypes"`
}

// Expense is a target-system expense record.
type Expense struct {
	ExpenseID   string  `json:"expenseId"`
	ProjectID   string  `json:"projectId,omitempty"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	Date        string  `json:"date,omitempty"`
	Category    string  `json:"category,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

// NewExpense is the payload for creating a target-system expense.
type NewExpense struct {
	ProjectID   string  `json:"projectId"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Category    string  `json:"category"`
}

// OutcomeReport is one entry of the accounting-sync report sent to the target
// system after every attempted expense creation, success or failure.
// BillingItemID is empty when the creation failed.
type OutcomeReport struct {
	BillingItemID  string `json:"BillingItemId"`
	SyncSuccessful bool   `json:"SyncSuccessful"`
	SystemID       string `json:"SystemId"`
	Note           string `json:"Note"`
}

// Source supplies the ledger provider's records for one end user. List calls
// return the full record set; paging is an implementation concern of the
// adapter.
type Source interface {
	ListCustomers(ctx context.Context) ([]SourceCustomer, error)
	ListAccounts(ctx context.Context) ([]SourceAccount, error)
	ListInvoices(ctx context.Context) ([]SourceInvoice, error)
}

// Target exposes the practice-management operations the reconciler needs:
// lookups for deduplication, creations, and the sync-outcome report sink.
type Target interface {
	ListContacts(ctx context.Context) ([]Contact, error)
	CreateContact(ctx context.Context, c NewContact) (personID string, err error)
	// GetExpense returns nil with no error when the id is unknown to the
	// target system.
	GetExpense(ctx context.Context, expenseID string) (*Expense, error)
	CreateExpense(ctx context.Context, e NewExpense) (expenseID string, err error)
	ReportOutcomes(ctx context.Context, reports []OutcomeReport) error
}
