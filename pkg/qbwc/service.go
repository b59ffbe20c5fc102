package qbwc

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/practicebridge/ledgersync/pkg/api"
)

// Config holds the bridge's connector credentials.
type Config struct {
	// Username and Password authenticate the web connector. The connector
	// conventionally sends an empty password.
	Username string
	Password string
}

// Service handles QuickBooks Web Connector sessions and pushes parsed qbXML
// records into the target system.
type Service struct {
	cfg    Config
	target api.Target
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	ticket  string
	pending int
}

// New creates a web-connector service.
func New(cfg Config, target api.Target, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		target: target,
		logger: logger,
		now:    time.Now,
	}
}

// Register mounts the connector endpoint on the router.
func (s *Service) Register(router *gin.Engine) {
	router.POST("/qbwc", s.handle)
}

func (s *Service) handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable request body")
		return
	}

	invocation, err := parseCall(body)
	if err != nil {
		s.logger.Error("bad SOAP request", "error", err)
		s.reply(c, "getLastError", "<getLastErrorResult>Server Error</getLastErrorResult>")
		return
	}

	s.logger.Info("web connector call", "method", invocation.Method)

	switch invocation.Method {
	case "serverVersion":
		s.reply(c, invocation.Method, "<serverVersionResult>1.0</serverVersionResult>")
	case "clientVersion":
		s.reply(c, invocation.Method, "<clientVersionResult></clientVersionResult>")
	case "authenticate":
		s.handleAuthenticate(c, invocation)
	case "sendRequestXML":
		s.handleSendRequest(c, invocation)
	case "receiveResponseXML":
		s.handleReceiveResponse(c, invocation)
	case "connectionError":
		s.reply(c, invocation.Method, "<connectionErrorResult>OK</connectionErrorResult>")
	case "closeConnection":
		s.reply(c, invocation.Method, "<closeConnectionResult>OK</closeConnectionResult>")
	case "getLastError":
		s.reply(c, invocation.Method, "<getLastErrorResult>No Error</getLastErrorResult>")
	default:
		s.reply(c, "serverVersion", "<serverVersionResult>1.0</serverVersionResult>")
	}
}

func (s *Service) handleAuthenticate(c *gin.Context, invocation *call) {
	params, err := parseAuthenticate(invocation.Inner)
	if err != nil {
		s.logger.Error("bad authenticate call", "error", err)
		s.reply(c, invocation.Method, "<authenticateResult><string></string><string>nvu</string></authenticateResult>")
		return
	}

	if params.Username != s.cfg.Username || params.Password != s.cfg.Password {
		s.logger.Warn("web connector authentication failed", "username", params.Username)
		// "nvu" tells the connector the user is not valid.
		s.reply(c, invocation.Method, "<authenticateResult><string></string><string>nvu</string></authenticateResult>")
		return
	}

	ticket := uuid.NewString()
	s.mu.Lock()
	s.ticket = ticket
	s.pending = 0
	s.mu.Unlock()

	s.reply(c, invocation.Method,
		fmt.Sprintf("<authenticateResult><string>%s</string><string></string></authenticateResult>", ticket))
}

func (s *Service) handleSendRequest(c *gin.Context, invocation *call) {
	s.mu.Lock()
	step := s.pending
	s.pending++
	s.mu.Unlock()

	var request string
	switch step {
	case 0:
		request = customerQueryXML
	case 1:
		request = invoiceQueryXML
	default:
		// Empty result ends the session.
		request = ""
	}

	s.reply(c, invocation.Method,
		fmt.Sprintf("<sendRequestXMLResult><![CDATA[%s]]></sendRequestXMLResult>", request))
}

func (s *Service) handleReceiveResponse(c *gin.Context, invocation *call) {
	params, err := parseReceiveResponse(invocation.Inner)
	if err != nil {
		s.logger.Error("bad receiveResponseXML call", "error", err)
		s.reply(c, invocation.Method, "<receiveResponseXMLResult>-1</receiveResponseXMLResult>")
		return
	}

	if err := s.process(c, params.Response); err != nil {
		s.logger.Error("failed to process qbXML response", "error", err)
	}

	// 100 tells the connector the work unit is fully processed.
	s.reply(c, invocation.Method, "<receiveResponseXMLResult>100</receiveResponseXMLResult>")
}

// process pushes every record of a qbXML query response into the target
// system. Per-record failures are logged and skipped.
func (s *Service) process(c *gin.Context, payload string) error {
	resp, err := parseQBXMLResponse(payload)
	if err != nil {
		return err
	}
	ctx := c.Request.Context()

	if rs := resp.MsgsRs.CustomerQueryRs; rs != nil {
		for _, customer := range rs.Customers {
			personID, err := s.target.CreateContact(ctx, contactFromCustomer(customer))
			if err != nil {
				s.logger.Error("failed to push contact", "full_name", customer.FullName, "error", err)
				continue
			}
			s.logger.Info("pushed contact", "full_name", customer.FullName, "person_id", personID)
		}
	}

	if rs := resp.MsgsRs.InvoiceQueryRs; rs != nil {
		for _, invoice := range rs.Invoices {
			for _, line := range invoice.ExpenseLines {
				expenseID, err := s.target.CreateExpense(ctx, expenseFromLine(invoice, line, s.now))
				if err != nil {
					s.logger.Error("failed to push expense",
						"txn_id", invoice.TxnID,
						"memo", line.Memo,
						"error", err,
					)
					continue
				}
				s.logger.Info("pushed expense", "txn_id", invoice.TxnID, "expense_id", expenseID)
			}
		}
	}

	return nil
}

func (s *Service) reply(c *gin.Context, method, result string) {
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(soapResponse(method, result)))
}
