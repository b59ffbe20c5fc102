package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicebridge/ledgersync/pkg/api"
	"github.com/practicebridge/ledgersync/pkg/mapstore"
)

type fakeSource struct {
	customers []api.SourceCustomer
	accounts  []api.SourceAccount
	invoices  []api.SourceInvoice

	customersErr error
	accountsErr  error
	invoicesErr  error
}

func (f *fakeSource) ListCustomers(context.Context) ([]api.SourceCustomer, error) {
	return f.customers, f.customersErr
}

func (f *fakeSource) ListAccounts(context.Context) ([]api.SourceAccount, error) {
	return f.accounts, f.accountsErr
}

func (f *fakeSource) ListInvoices(context.Context) ([]api.SourceInvoice, error) {
	return f.invoices, f.invoicesErr
}

type fakeTarget struct {
	contacts []api.Contact
	expenses map[string]api.Expense

	createdContacts []api.NewContact
	createdExpenses []api.NewExpense
	reports         []api.OutcomeReport

	// contactErrFor fails CreateContact for a specific full name.
	contactErrFor string
	expenseErr    error

	nextID int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{expenses: make(map[string]api.Expense)}
}

func (f *fakeTarget) ListContacts(context.Context) ([]api.Contact, error) {
	return f.contacts, nil
}

func (f *fakeTarget) CreateContact(_ context.Context, c api.NewContact) (string, error) {
	if f.contactErrFor != "" && c.FullName == f.contactErrFor {
		return "", fmt.Errorf("create contact %s: boom", c.FullName)
	}
	f.nextID++
	id := fmt.Sprintf("person-%d", f.nextID)
	f.createdContacts = append(f.createdContacts, c)
	f.contacts = append(f.contacts, api.Contact{PersonID: id, FullName: c.FullName, Email: c.Email})
	return id, nil
}

func (f *fakeTarget) GetExpense(_ context.Context, expenseID string) (*api.Expense, error) {
	if e, ok := f.expenses[expenseID]; ok {
		return &e, nil
	}
	return nil, nil
}

func (f *fakeTarget) CreateExpense(_ context.Context, e api.NewExpense) (string, error) {
	if f.expenseErr != nil {
		return "", f.expenseErr
	}
	f.nextID++
	id := fmt.Sprintf("expense-%d", f.nextID)
	f.createdExpenses = append(f.createdExpenses, e)
	f.expenses[id] = api.Expense{ExpenseID: id, Amount: e.Amount, Category: e.Category}
	return id, nil
}

func (f *fakeTarget) ReportOutcomes(_ context.Context, reports []api.OutcomeReport) error {
	f.reports = append(f.reports, reports...)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *mapstore.Store {
	t.Helper()
	store, err := mapstore.New(t.TempDir(), testLogger())
	require.NoError(t, err)
	return store
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func accountLine(id, accountID, description, amt string) api.SourceLine {
	return api.SourceLine{
		ID:          id,
		Description: description,
		Amount:      amount(amt),
		Class:       api.Classification{Kind: api.ClassAccount, AccountID: accountID},
	}
}

func itemLine(id, itemName, description, amt string) api.SourceLine {
	return api.SourceLine{
		ID:          id,
		Description: description,
		Amount:      amount(amt),
		Class:       api.Classification{Kind: api.ClassItem, ItemName: itemName},
	}
}

func TestRunIsIdempotentAcrossPasses(t *testing.T) {
	dir := t.TempDir()
	store, err := mapstore.New(dir, testLogger())
	require.NoError(t, err)

	src := &fakeSource{
		customers: []api.SourceCustomer{
			{ID: "cust-1", FullName: "Acme Corp"},
			{ID: "cust-2", FullName: "Globex"},
			{ID: "cust-3", FullName: "Initech"},
		},
		accounts: []api.SourceAccount{
			{ID: "acct-1", FullName: "Travel", AccountType: "Expense"},
		},
		invoices: []api.SourceInvoice{{
			ID:              "inv-1",
			Customer:        &api.Ref{ID: "cust-1"},
			TransactionDate: "2026-05-18",
			Lines:           []api.SourceLine{accountLine("line-1", "acct-1", "Mileage", "42.50")},
		}},
	}
	tgt := newFakeTarget()

	res, err := New(src, tgt, store, AccountLines, testLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.ContactsCreated)
	assert.Equal(t, 1, res.ExpensesCreated)
	assert.Len(t, tgt.createdContacts, 3)
	assert.Len(t, tgt.createdExpenses, 1)

	// Second pass over the same source set: the persisted snapshot must
	// short-circuit every record, issuing zero creations.
	store2, err := mapstore.New(dir, testLogger())
	require.NoError(t, err)

	res2, err := New(src, tgt, store2, AccountLines, testLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res2.ContactsCreated)
	assert.Equal(t, 0, res2.ExpensesCreated)
	assert.Equal(t, 1, res2.ExpensesSkipped)
	assert.Len(t, tgt.createdContacts, 3, "no additional contact creations on second pass")
	assert.Len(t, tgt.createdExpenses, 1, "no additional expense creations on second pass")
}

func TestContactFallbackClaimsExistingByName(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{
		customers: []api.SourceCustomer{{ID: "cust-1", FullName: "Acme Corp"}},
	}
	tgt := newFakeTarget()
	tgt.contacts = []api.Contact{{PersonID: "person-existing", FullName: "Acme Corp"}}

	res, err := New(src, tgt, store, AccountLines, testLogger()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.ContactsCreated)
	assert.Equal(t, 1, res.ContactsMatched)
	assert.Empty(t, tgt.createdContacts, "no duplicate is created for an already-present contact")
}

func TestCustomerWithoutIDIsSkipped(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{
		customers: []api.SourceCustomer{
			{FullName: "No Id Inc"},
			{ID: "cust-1", FullName: "Acme Corp"},
		},
	}
	tgt := newFakeTarget()

	res, err := New(src, tgt, store, AccountLines, testLogger()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.ContactsCreated)
	require.Len(t, tgt.createdContacts, 1)
	assert.Equal(t, "Acme Corp", tgt.createdContacts[0].FullName)
}

func TestContactEmailDefaultsFromSourceID(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{
		customers: []api.SourceCustomer{
			{ID: "cust-1", FullName: "Acme Corp"},
			{ID: "cust-2", FullName: "Globex", Email: "ap@globex.example"},
		},
	}
	tgt := newFakeTarget()

	_, err := New(src, tgt, store, AccountLines, testLogger()).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, tgt.createdContacts, 2)
	assert.Equal(t, "cust-1@example.com", tgt.createdContacts[0].Email)
	assert.Equal(t, "ap@globex.example", tgt.createdContacts[1].Email)
	assert.Equal(t, []string{"Client"}, tgt.createdContacts[0].PersonTypes)
}

func TestZeroAmountLinesAreNeverReconciled(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{
		invoices: []api.SourceInvoice{{
			ID: "inv-1",
			Lines: []api.SourceLine{
				accountLine("line-1", "acct-1", "zero", "0.00"),
				{ID: "line-2", Description: "absent", Class: api.Classification{Kind: api.ClassAccount, AccountID: "acct-1"}},
				accountLine("line-3", "acct-1", "kept", "10.00"),
			},
		}},
	}
	tgt := newFakeTarget()

	res, err := New(src, tgt, store, AccountLines, testLogger()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.ExpensesCreated)
	require.Len(t, tgt.createdExpenses, 1)
	assert.Equal(t, "kept", tgt.createdExpenses[0].Description)
}

func TestClassificationModeIsExclusive(t *testing.T) {
	lines := []api.SourceLine{
		accountLine("line-1", "acct-1", "account line", "5.00"),
		itemLine("line-2", "Painting", "item line", "7.00"),
		itemLine("line-3", "Subtotal", "subtotal line", "12.00"),
	}

	t.Run("account mode", func(t *testing.T) {
		store := newTestStore(t)
		src := &fakeSource{invoices: []api.SourceInvoice{{ID: "inv-1", Lines: lines}}}
		tgt := newFakeTarget()

		_, err := New(src, tgt, store, AccountLines, testLogger()).Run(context.Background())
		require.NoError(t, err)

		require.Len(t, tgt.createdExpenses, 1)
		assert.Equal(t, "account line", tgt.createdExpenses[0].Description)
	})

	t.Run("item mode excludes account lines and Subtotal", func(t *testing.T) {
		store := newTestStore(t)
		src := &fakeSource{invoices: []api.SourceInvoice{{ID: "inv-1", Lines: lines}}}
		tgt := newFakeTarget()

		_, err := New(src, tgt, store, ItemLines, testLogger()).Run(context.Background())
		require.NoError(t, err)

		require.Len(t, tgt.createdExpenses, 1)
		assert.Equal(t, "item line", tgt.createdExpenses[0].Description)
	})
}

func TestCategoryDerivationPrecedence(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{
		accounts: []api.SourceAccount{
			{ID: "acct-1", FullName: "Office Supplies", AccountType: "expense"},
		},
		invoices: []api.SourceInvoice{{
			ID: "inv-1",
			Lines: []api.SourceLine{
				accountLine("line-1", "acct-1", "mapped account", "1.00"),
				accountLine("line-2", "acct-unknown", "unmapped account", "2.00"),
			},
		}},
	}
	tgt := newFakeTarget()

	_, err := New(src, tgt, store, AccountLines, testLogger()).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, tgt.createdExpenses, 2)
	assert.Equal(t, "Office Supplies", tgt.createdExpenses[0].Category)
	assert.Equal(t, "General Expense", tgt.createdExpenses[1].Category)
}

func TestItemCategoryFallsBackToGeneralItem(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{
		invoices: []api.SourceInvoice{{
			ID: "inv-1",
			Lines: []api.SourceLine{
				itemLine("line-1", "Painting", "named item", "3.00"),
				itemLine("line-2", "", "unnamed item", "4.00"),
			},
		}},
	}
	tgt := newFakeTarget()

	_, err := New(src, tgt, store, ItemLines, testLogger()).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, tgt.createdExpenses, 2)
	assert.Equal(t, "Painting", tgt.createdExpenses[0].Category)
	assert.Equal(t, "General Item", tgt.createdExpenses[1].Category)
}

func TestExpenseProjectAndDateDerivation(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{
		customers: []api.SourceCustomer{{ID: "cust-1", FullName: "Acme Corp"}},
		invoices: []api.SourceInvoice{
			{
				ID:              "inv-1",
				Customer:        &api.Ref{ID: "cust-1"},
				TransactionDate: "2026-05-18",
				Lines:           []api.SourceLine{accountLine("line-1", "acct-1", "dated", "5.00")},
			},
			{
				ID:       "inv-2",
				Customer: &api.Ref{ID: "cust-unmapped"},
				Lines:    []api.SourceLine{accountLine("line-1", "acct-1", "undated", "6.00")},
			},
		},
	}
	tgt := newFakeTarget()

	rec := New(src, tgt, store, AccountLines, testLogger())
	rec.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }

	_, err := rec.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, tgt.createdExpenses, 2)
	assert.Equal(t, "person-1", tgt.createdExpenses[0].ProjectID, "project is the mapped contact id")
	assert.Equal(t, "2026-05-18", tgt.createdExpenses[0].Date)
	assert.Equal(t, "Unknown", tgt.createdExpenses[1].ProjectID)
	assert.Equal(t, "2026-09-01", tgt.createdExpenses[1].Date)
}

func TestCustomerFailureDoesNotAbortPhase(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{
		customers: []api.SourceCustomer{
			{ID: "cust-1", FullName: "Acme Corp"},
			{ID: "cust-2", FullName: "Broken"},
			{ID: "cust-3", FullName: "Initech"},
		},
	}
	tgt := newFakeTarget()
	tgt.contactErrFor = "Broken"

	res, err := New(src, tgt, store, AccountLines, testLogger()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.ContactsCreated)
	assert.Equal(t, 1, res.Failures)
	require.Len(t, tgt.createdContacts, 2)
	assert.Equal(t, "Initech", tgt.createdContacts[1].FullName, "customers after the failure are still processed")
}

func TestOutcomeReportSentOncePerAttempt(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		store := newTestStore(t)
		src := &fakeSource{
			invoices: []api.SourceInvoice{{
				ID:    "inv-1",
				Lines: []api.SourceLine{accountLine("line-1", "acct-1", "ok", "9.00")},
			}},
		}
		tgt := newFakeTarget()

		_, err := New(src, tgt, store, AccountLines, testLogger()).Run(context.Background())
		require.NoError(t, err)

		require.Len(t, tgt.reports, 1)
		report := tgt.reports[0]
		assert.True(t, report.SyncSuccessful)
		assert.Equal(t, "inv-1:line-1", report.SystemID)
		assert.NotEmpty(t, report.BillingItemID)
	})

	t.Run("failure", func(t *testing.T) {
		store := newTestStore(t)
		src := &fakeSource{
			invoices: []api.SourceInvoice{{
				ID:    "inv-1",
				Lines: []api.SourceLine{accountLine("line-1", "acct-1", "bad", "9.00")},
			}},
		}
		tgt := newFakeTarget()
		tgt.expenseErr = errors.New("target rejected the expense")

		res, err := New(src, tgt, store, AccountLines, testLogger()).Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, res.Failures)
		require.Len(t, tgt.reports, 1)
		report := tgt.reports[0]
		assert.False(t, report.SyncSuccessful)
		assert.Equal(t, "inv-1:line-1", report.SystemID)
		assert.Empty(t, report.BillingItemID)
		assert.Contains(t, report.Note, "target rejected the expense")
	})
}

// A line without a ledger-assigned id gets a freshly synthesized id every
// pass, so its sync key never matches across passes and the line is created
// again. This documents the current behavior rather than endorsing it.
func TestMissingLineIDDefeatsDedupAcrossPasses(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{
		invoices: []api.SourceInvoice{{
			ID:    "inv-1",
			Lines: []api.SourceLine{accountLine("", "acct-1", "no line id", "9.00")},
		}},
	}
	tgt := newFakeTarget()

	for pass := 0; pass < 2; pass++ {
		store, err := mapstore.New(dir, testLogger())
		require.NoError(t, err)
		_, err = New(src, tgt, store, AccountLines, testLogger()).Run(context.Background())
		require.NoError(t, err)
	}

	assert.Len(t, tgt.createdExpenses, 2, "each pass re-creates the id-less line")
}

func TestCustomerListFailureAbortsOnlyThatPhase(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{
		customersErr: errors.New("ledger unavailable"),
		invoices: []api.SourceInvoice{{
			ID:    "inv-1",
			Lines: []api.SourceLine{accountLine("line-1", "acct-1", "still synced", "9.00")},
		}},
	}
	tgt := newFakeTarget()

	res, err := New(src, tgt, store, AccountLines, testLogger()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.ContactsCreated)
	assert.Equal(t, 1, res.ExpensesCreated, "expense phase still runs after the customer phase aborts")
	assert.NotEmpty(t, res.SnapshotID, "snapshot is still written")
}

func TestAccountListFailureAbortsExpensePhase(t *testing.T) {
	store := newTestStore(t)
	src := &fakeSource{
		customers:   []api.SourceCustomer{{ID: "cust-1", FullName: "Acme Corp"}},
		accountsErr: errors.New("ledger unavailable"),
	}
	tgt := newFakeTarget()

	res, err := New(src, tgt, store, AccountLines, testLogger()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.ContactsCreated)
	assert.Equal(t, 0, res.ExpensesCreated)
}
