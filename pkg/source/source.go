// Package source implements the ledger-provider adapter: a read-only HTTP
// client that pages through customers, accounts and invoices for one end user
// and normalizes them into the api types consumed by the reconciler.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/practicebridge/ledgersync/pkg/api"
)

// Config holds the ledger client configuration.
type Config struct {
	// BaseURL is the ledger API root, e.g. "https://ledger.example.com/v1".
	BaseURL string
	// EndUserID selects the tenant whose records are listed.
	EndUserID string
	// Timeout bounds each page request. Defaults to 30s.
	Timeout time.Duration
}

// Client lists ledger records over HTTP. It implements api.Source.
type Client struct {
	baseURL   string
	endUserID string
	http      *http.Client
	logger    *slog.Logger
}

// New creates a ledger client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		endUserID: cfg.EndUserID,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// page is the envelope every list endpoint responds with.
type page struct {
	Data       []json.RawMessage `json:"data"`
	NextCursor string            `json:"nextCursor"`
}

// rawLine is an invoice line as it appears on the wire, before the
// account-vs-item references are reduced to a classification and the textual
// amount to a decimal.
type rawLine struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Amount      *string  `json:"amount"`
	AccountRef  *api.Ref `json:"account_ref"`
	Item        *api.Ref `json:"item"`
	ObjectType  string   `json:"object_type"`
}

type rawInvoice struct {
	ID              string    `json:"id"`
	Customer        *api.Ref  `json:"customer"`
	TransactionDate string    `json:"transaction_date"`
	Lines           []rawLine `json:"lines"`
}

// ListCustomers returns all customers across pages.
func (c *Client) ListCustomers(ctx context.Context) ([]api.SourceCustomer, error) {
	raw, err := c.listAll(ctx, "customers")
	if err != nil {
		return nil, err
	}

	customers := make([]api.SourceCustomer, 0, len(raw))
	for _, r := range raw {
		var cust api.SourceCustomer
		if err := json.Unmarshal(r, &cust); err != nil {
			return nil, fmt.Errorf("decoding customer: %w", err)
		}
		customers = append(customers, cust)
	}
	return customers, nil
}

// ListAccounts returns all accounts across pages.
func (c *Client) ListAccounts(ctx context.Context) ([]api.SourceAccount, error) {
	raw, err := c.listAll(ctx, "accounts")
	if err != nil {
		return nil, err
	}

	accounts := make([]api.SourceAccount, 0, len(raw))
	for _, r := range raw {
		var acct api.SourceAccount
		if err := json.Unmarshal(r, &acct); err != nil {
			return nil, fmt.Errorf("decoding account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// ListInvoices returns all invoices across pages with their lines normalized.
func (c *Client) ListInvoices(ctx context.Context) ([]api.SourceInvoice, error) {
	raw, err := c.listAll(ctx, "invoices")
	if err != nil {
		return nil, err
	}

	invoices := make([]api.SourceInvoice, 0, len(raw))
	for _, r := range raw {
		var inv rawInvoice
		if err := json.Unmarshal(r, &inv); err != nil {
			return nil, fmt.Errorf("decoding invoice: %w", err)
		}
		invoices = append(invoices, normalizeInvoice(inv, c.logger))
	}
	return invoices, nil
}

// normalizeInvoice applies the ingestion defaulting policy: textual amounts
// become decimals (unparseable or absent amounts become zero, which excludes
// the line later), and the account/item references collapse into the
// two-case classification.
func normalizeInvoice(inv rawInvoice, logger *slog.Logger) api.SourceInvoice {
	out := api.SourceInvoice{
		ID:              inv.ID,
		Customer:        inv.Customer,
		TransactionDate: inv.TransactionDate,
		Lines:           make([]api.SourceLine, 0, len(inv.Lines)),
	}

	for _, l := range inv.Lines {
		line := api.SourceLine{
			ID:          l.ID,
			Description: l.Description,
			Class:       api.Classify(l.AccountRef, l.Item),
		}
		if l.Amount != nil {
			amount, err := decimal.NewFromString(*l.Amount)
			if err != nil {
				logger.Warn("unparseable line amount, treating as zero",
					"invoice_id", inv.ID,
					"line_id", l.ID,
					"amount", *l.Amount,
				)
			} else {
				line.Amount = amount
			}
		}
		out.Lines = append(out.Lines, line)
	}

	return out
}

// listAll follows nextCursor until the endpoint reports no further pages.
func (c *Client) listAll(ctx context.Context, resource string) ([]json.RawMessage, error) {
	var (
		all    []json.RawMessage
		cursor string
	)

	for {
		p, err := c.listPage(ctx, resource, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Data...)

		if p.NextCursor == "" {
			break
		}
		cursor = p.NextCursor
	}

	c.logger.Debug("listed source records", "resource", resource, "count", len(all))
	return all, nil
}

func (c *Client) listPage(ctx context.Context, resource, cursor string) (*page, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s", c.baseURL, resource))
	if err != nil {
		return nil, fmt.Errorf("building %s URL: %w", resource, err)
	}

	q := u.Query()
	q.Set("endUserId", c.endUserID)
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", resource, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("listing %s: unexpected status %d: %s", resource, resp.StatusCode, body)
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding %s page: %w", resource, err)
	}
	return &p, nil
}
