// Package reconciler drives one idempotent synchronization pass: ledger
// customers become target contacts, expense accounts become category labels,
// and invoice lines become target expenses, each created at most once across
// repeated passes by consulting the identity mapping store before every
// creation decision.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/practicebridge/ledgersync/pkg/api"
	"github.com/practicebridge/ledgersync/pkg/mapstore"
)

// Defaulting policy for partially absent source fields.
const (
	// defaultEmailDomain completes the contact email when the ledger
	// supplies none: "{customer_id}@example.com".
	defaultEmailDomain = "@example.com"
	// clientPersonType tags every created contact.
	clientPersonType = "Client"
	// unknownProject is the sentinel project reference when the invoice's
	// customer has no mapped contact.
	unknownProject = "Unknown"
	// defaultDescription stands in for a line with no description.
	defaultDescription = "No description"
	// generalExpense is the category fallback on the account branch.
	generalExpense = "General Expense"
	// generalItem is the category fallback on the item branch.
	generalItem = "General Item"
	// subtotalItem names the pseudo-item that is never an expense.
	subtotalItem = "Subtotal"
)

// Mode selects which invoice line classification a pass synchronizes.
// Exactly one mode is active per pass.
type Mode int

const (
	// AccountLines synchronizes lines carrying an account reference.
	AccountLines Mode = iota
	// ItemLines synchronizes lines carrying a non-Subtotal item reference.
	ItemLines
)

func (m Mode) String() string {
	if m == ItemLines {
		return "item-lines"
	}
	return "account-lines"
}

// Result summarizes one pass.
type Result struct {
	ContactsCreated int
	ContactsMatched int
	ExpensesCreated int
	ExpensesSkipped int
	Failures        int
	SnapshotID      string
}

// Reconciler runs synchronization passes. Records are processed strictly one
// at a time: customers, then accounts, then invoice lines.
type Reconciler struct {
	source api.Source
	target api.Target
	store  *mapstore.Store
	mode   Mode
	logger *slog.Logger

	// now and newLineID are replaceable for tests.
	now       func() time.Time
	newLineID func() string
}

// New creates a reconciler.
func New(source api.Source, target api.Target, store *mapstore.Store, mode Mode, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		source:    source,
		target:    target,
		store:     store,
		mode:      mode,
		logger:    logger,
		now:       time.Now,
		newLineID: uuid.NewString,
	}
}

// Run executes one pass. Individual record failures are isolated and logged;
// a phase whose source listing fails is abandoned while later phases still
// run. The mapping snapshot is written once at the very end, so an aborted
// pass leaves the last complete snapshot in place.
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	started := r.now()
	r.logger.Info("starting sync pass", "mode", r.mode.String())

	mapping := r.store.Load(ctx)

	var res Result
	if err := r.syncCustomers(ctx, mapping, &res); err != nil {
		r.logger.Error("customer phase aborted", "error", err)
	}
	if err := r.syncExpenses(ctx, mapping, &res); err != nil {
		r.logger.Error("expense phase aborted", "error", err)
	}

	snapshotID, err := r.store.Save(ctx, mapping)
	if err != nil {
		r.logger.Error("failed to persist mapping snapshot", "error", err)
		return res, fmt.Errorf("saving mapping snapshot: %w", err)
	}
	res.SnapshotID = snapshotID

	r.logger.Info("sync pass completed",
		"contacts_created", res.ContactsCreated,
		"contacts_matched", res.ContactsMatched,
		"expenses_created", res.ExpensesCreated,
		"expenses_skipped", res.ExpensesSkipped,
		"failures", res.Failures,
		"snapshot", snapshotID,
		"elapsed", r.now().Sub(started),
	)
	return res, nil
}

// syncCustomers reconciles ledger customers into target contacts.
func (r *Reconciler) syncCustomers(ctx context.Context, mapping mapstore.Mapping, res *Result) error {
	customers, err := r.source.ListCustomers(ctx)
	if err != nil {
		return fmt.Errorf("listing customers: %w", err)
	}
	r.logger.Info("fetched customers", "count", len(customers))

	for _, customer := range customers {
		if customer.ID == "" {
			r.logger.Warn("skipping customer without id", "full_name", customer.FullName)
			continue
		}

		if _, ok := mapping.ContactID(customer.ID); ok {
			r.logger.Debug("customer already synced", "customer_id", customer.ID)
			continue
		}

		// A contact may exist target-side without a mapping entry when a
		// prior pass crashed between creation and snapshot write. Claim
		// it instead of creating a duplicate.
		personID, err := r.findContact(ctx, mapping, customer)
		if err != nil {
			r.logger.Warn("contact lookup failed", "customer_id", customer.ID, "error", err)
		}
		if personID != "" {
			r.logger.Info("customer already exists on target",
				"customer_id", customer.ID,
				"person_id", personID,
			)
			mapping.Customers[customer.ID] = personID
			res.ContactsMatched++
			continue
		}

		email := customer.Email
		if email == "" {
			email = customer.ID + defaultEmailDomain
		}

		created, err := r.target.CreateContact(ctx, api.NewContact{
			FullName:    customer.FullName,
			Email:       email,
			PersonTypes: []string{clientPersonType},
		})
		if err != nil {
			r.logger.Error("failed to sync customer",
				"customer_id", customer.ID,
				"full_name", customer.FullName,
				"error", err,
			)
			res.Failures++
			continue
		}

		mapping.Customers[customer.ID] = created
		res.ContactsCreated++
		r.logger.Info("synced customer",
			"customer_id", customer.ID,
			"person_id", created,
		)
	}

	return nil
}

// findContact queries the target system for a contact matching the customer's
// display name. When the mapping records a target id for this customer the
// match must also carry that id; with nothing recorded the name match alone
// claims the contact.
func (r *Reconciler) findContact(ctx context.Context, mapping mapstore.Mapping, customer api.SourceCustomer) (string, error) {
	contacts, err := r.target.ListContacts(ctx)
	if err != nil {
		return "", err
	}

	recorded, hasRecorded := mapping.ContactID(customer.ID)
	for _, contact := range contacts {
		if contact.FullName != customer.FullName {
			continue
		}
		if hasRecorded && contact.PersonID != recorded {
			continue
		}
		return contact.PersonID, nil
	}
	return "", nil
}

// syncExpenses records expense-account labels and reconciles invoice lines
// into target expenses. A failed account listing abandons the whole phase;
// a failed invoice listing abandons only the line reconciliation.
func (r *Reconciler) syncExpenses(ctx context.Context, mapping mapstore.Mapping, res *Result) error {
	accounts, err := r.source.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}

	expenseAccounts := 0
	for _, account := range accounts {
		if !strings.EqualFold(account.AccountType, "expense") {
			continue
		}
		expenseAccounts++

		if account.ID == "" {
			r.logger.Warn("skipping account without id", "full_name", account.FullName)
			continue
		}
		if _, ok := mapping.Accounts[account.ID]; ok {
			continue
		}
		mapping.Accounts[account.ID] = account.FullName
		r.logger.Info("mapped account", "account_id", account.ID, "full_name", account.FullName)
	}
	r.logger.Info("fetched expense accounts", "count", expenseAccounts)

	invoices, err := r.source.ListInvoices(ctx)
	if err != nil {
		return fmt.Errorf("listing invoices: %w", err)
	}
	r.logger.Info("fetched invoices", "count", len(invoices))

	for _, invoice := range invoices {
		for _, line := range invoice.Lines {
			r.reconcileLine(ctx, mapping, invoice, line, res)
		}
	}

	return nil
}

// included applies the classification filter: the active mode must match the
// line's variant, and Subtotal pseudo-items never reconcile.
func (r *Reconciler) included(line api.SourceLine) bool {
	switch r.mode {
	case ItemLines:
		return line.Class.Kind == api.ClassItem && line.Class.ItemName != subtotalItem
	default:
		return line.Class.Kind == api.ClassAccount
	}
}

// reconcileLine processes one invoice line through the filter, dedup and
// creation steps. Failures never propagate past the line.
func (r *Reconciler) reconcileLine(ctx context.Context, mapping mapstore.Mapping, invoice api.SourceInvoice, line api.SourceLine, res *Result) {
	if !r.included(line) {
		return
	}
	if line.Amount.IsZero() {
		return
	}

	lineID := line.ID
	if lineID == "" {
		// Fresh every pass: a line without a ledger-assigned id cannot be
		// deduplicated across retries. Known limitation, kept visible.
		lineID = r.newLineID()
		r.logger.Warn("line has no id, synthesizing one",
			"invoice_id", invoice.ID,
			"line_id", lineID,
		)
	}
	key := api.NewExpenseSyncKey(invoice.ID, lineID)

	if _, ok := mapping.ExpenseID(key); ok {
		r.logger.Debug("expense already synced", "sync_key", key)
		res.ExpensesSkipped++
		return
	}

	if expenseID := r.findExpense(ctx, mapping, key); expenseID != "" {
		r.logger.Info("expense already exists on target", "sync_key", key, "expense_id", expenseID)
		mapping.Expenses[string(key)] = expenseID
		res.ExpensesSkipped++
		return
	}

	payload := r.buildExpense(mapping, invoice, line)

	expenseID, err := r.target.CreateExpense(ctx, payload)
	if err != nil {
		r.logger.Error("failed to sync expense",
			"sync_key", key,
			"description", payload.Description,
			"error", err,
		)
		res.Failures++
		r.report(ctx, api.OutcomeReport{
			SyncSuccessful: false,
			SystemID:       string(key),
			Note:           err.Error(),
		})
		return
	}

	mapping.Expenses[string(key)] = expenseID
	res.ExpensesCreated++
	r.logger.Info("synced expense",
		"sync_key", key,
		"expense_id", expenseID,
		"amount", payload.Amount,
	)
	r.report(ctx, api.OutcomeReport{
		BillingItemID:  expenseID,
		SyncSuccessful: true,
		SystemID:       string(key),
		Note:           "Synced successfully",
	})
}

// findExpense confirms a mapping-recorded expense id against the target
// system. With no recorded id there is nothing to match on, so the lookup is
// skipped entirely.
func (r *Reconciler) findExpense(ctx context.Context, mapping mapstore.Mapping, key api.ExpenseSyncKey) string {
	recorded, ok := mapping.ExpenseID(key)
	if !ok {
		return ""
	}

	expense, err := r.target.GetExpense(ctx, recorded)
	if err != nil {
		r.logger.Warn("expense lookup failed", "sync_key", key, "error", err)
		return ""
	}
	if expense == nil {
		return ""
	}
	return expense.ExpenseID
}

// buildExpense derives the creation payload from the line, its invoice and
// the mapping: category by precedence (account label, item name, literal
// fallback), project from the mapped contact of the invoice's customer, date
// from the invoice else today.
func (r *Reconciler) buildExpense(mapping mapstore.Mapping, invoice api.SourceInvoice, line api.SourceLine) api.NewExpense {
	var category string
	switch line.Class.Kind {
	case api.ClassAccount:
		if name, ok := mapping.Accounts[line.Class.AccountID]; ok {
			category = name
		} else {
			category = generalExpense
		}
	case api.ClassItem:
		if line.Class.ItemName != "" {
			category = line.Class.ItemName
		} else {
			category = generalItem
		}
	default:
		category = generalItem
	}

	projectID := unknownProject
	if invoice.Customer != nil && invoice.Customer.ID != "" {
		if personID, ok := mapping.ContactID(invoice.Customer.ID); ok {
			projectID = personID
		}
	}

	date := invoice.TransactionDate
	if date == "" {
		date = r.now().Format("2006-01-02")
	}

	description := line.Description
	if description == "" {
		description = defaultDescription
	}

	amount, _ := line.Amount.Float64()

	return api.NewExpense{
		ProjectID:   projectID,
		Description: description,
		Amount:      amount,
		Date:        date,
		Category:    category,
	}
}

// report delivers one outcome entry. Reporting is best-effort telemetry: its
// failure is logged and never aborts the pass.
func (r *Reconciler) report(ctx context.Context, entry api.OutcomeReport) {
	if err := r.target.ReportOutcomes(ctx, []api.OutcomeReport{entry}); err != nil {
		r.logger.Error("failed to report sync outcome",
			"sync_key", entry.SystemID,
			"error", err,
		)
	}
}
