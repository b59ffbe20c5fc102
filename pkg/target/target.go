// Package target implements the practice-management adapter: an HTTP client
// that authenticates via the fixed-credential token exchange and exposes the
// contact, expense and accounting-sync operations the reconciler needs.
package target

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/practicebridge/ledgersync/pkg/api"
)

// Config holds the target client configuration.
type Config struct {
	// BaseURL is the practice-management API root.
	BaseURL string
	// ClientID and ClientSecret are exchanged at {BaseURL}/connect/token
	// for a bearer token.
	ClientID     string
	ClientSecret string
	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration
	// RetryAttempts bounds write retries on 429/5xx. Defaults to 3.
	RetryAttempts uint
	// RetryDelay is the base delay between retries. Defaults to 2s.
	RetryDelay time.Duration
}

// Client talks to the practice-management API. It implements api.Target.
type Client struct {
	baseURL       string
	http          *http.Client
	logger        *slog.Logger
	retryAttempts uint
	retryDelay    time.Duration
}

// statusError is returned for non-2xx responses; it drives the retry policy.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

func retryable(err error) bool {
	if se, ok := err.(*statusError); ok {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	return false
}

// New creates a target client. The token exchange happens lazily on the first
// request and the token is refreshed before expiry by the oauth2 transport.
func New(ctx context.Context, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 3
	}
	delay := cfg.RetryDelay
	if delay == 0 {
		delay = 2 * time.Second
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.BaseURL + "/connect/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	httpClient := cc.Client(ctx)
	httpClient.Timeout = timeout

	return &Client{
		baseURL:       cfg.BaseURL,
		http:          httpClient,
		logger:        logger,
		retryAttempts: attempts,
		retryDelay:    delay,
	}
}

// ListContacts returns every contact known to the target system.
func (c *Client) ListContacts(ctx context.Context) ([]api.Contact, error) {
	var contacts []api.Contact
	if err := c.get(ctx, "/core/contacts", &contacts); err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	return contacts, nil
}

// CreateContact creates a contact and returns its generated personId.
func (c *Client) CreateContact(ctx context.Context, contact api.NewContact) (string, error) {
	var resp struct {
		PersonID string `json:"personId"`
	}
	if err := c.send(ctx, http.MethodPost, "/core/contacts", contact, &resp); err != nil {
		return "", fmt.Errorf("creating contact: %w", err)
	}
	return resp.PersonID, nil
}

// GetExpense looks up an expense by id. A 404 yields (nil, nil).
func (c *Client) GetExpense(ctx context.Context, expenseID string) (*api.Expense, error) {
	var expenses []api.Expense
	err := c.get(ctx, "/core/expense?expenseId="+expenseID, &expenses)
	if err != nil {
		if se, ok := err.(*statusError); ok && se.status == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting expense %s: %w", expenseID, err)
	}
	if len(expenses) == 0 {
		return nil, nil
	}
	return &expenses[0], nil
}

// CreateExpense creates an expense and returns its generated expenseId.
func (c *Client) CreateExpense(ctx context.Context, expense api.NewExpense) (string, error) {
	var resp struct {
		Status    string `json:"status"`
		ExpenseID string `json:"expenseId"`
	}
	if err := c.send(ctx, http.MethodPost, "/core/expense", expense, &resp); err != nil {
		return "", fmt.Errorf("creating expense: %w", err)
	}
	return resp.ExpenseID, nil
}

// ReportOutcomes delivers the ordered accounting-sync report.
func (c *Client) ReportOutcomes(ctx context.Context, reports []api.OutcomeReport) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.send(ctx, http.MethodPut, "/fv-app/v2/AccountingSync", reports, &resp); err != nil {
		return fmt.Errorf("reporting sync outcomes: %w", err)
	}
	return nil
}

// get performs a GET without retry; reads are cheap to repeat at the caller's
// discretion and a stale failure only skips a single record.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// send performs a write with bounded retries on 429 and 5xx responses.
func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			return c.do(req, out)
		},
		retry.RetryIf(func(err error) bool {
			if retryable(err) {
				c.logger.Warn("retrying target request", "method", method, "path", path, "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
	)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{status: resp.StatusCode, body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
