package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/practicebridge/ledgersync/internal/server/store"
	"github.com/practicebridge/ledgersync/pkg/api"
)

// invoiceRecord and timeEntryRecord are placeholder documents; the mock only
// tracks their existence.
type invoiceRecord struct {
	InvoiceID string `json:"invoiceId"`
	CreatedAt string `json:"created_at"`
}

type timeEntryRecord struct {
	EntryID   string `json:"entryId"`
	CreatedAt string `json:"created_at"`
}

// syncStatusRecord is one received outcome report plus the receipt time.
type syncStatusRecord struct {
	api.OutcomeReport
	ReceivedAt string `json:"received_at"`
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ===== Contacts =====

func (s *Server) handleListContacts(c *gin.Context) {
	var contacts []api.Contact
	if err := s.store.Load(c.Request.Context(), store.Contacts, &contacts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if personID := c.Query("personId"); personID != "" {
		for _, contact := range contacts {
			if contact.PersonID == personID {
				c.JSON(http.StatusOK, []api.Contact{contact})
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
		return
	}

	if contacts == nil {
		contacts = []api.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}

type createContactRequest struct {
	PersonID    string   `json:"personId"`
	FullName    string   `json:"fullName" binding:"required"`
	Email       string   `json:"email"`
	PersonTypes []string `json:"personTypes"`
}

func (s *Server) handleCreateContact(c *gin.Context) {
	var req createContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var contacts []api.Contact
	if err := s.store.Load(c.Request.Context(), store.Contacts, &contacts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	personID := req.PersonID
	if personID == "" {
		personID = uuid.NewString()
	}

	now := nowISO()
	contacts = append(contacts, api.Contact{
		PersonID:    personID,
		FullName:    req.FullName,
		Email:       req.Email,
		PersonTypes: req.PersonTypes,
		CreatedAt:   now,
		UpdatedAt:   now,
	})

	if err := s.store.Save(c.Request.Context(), store.Contacts, contacts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"personId": personID})
}

type updateContactRequest struct {
	FullName    string   `json:"fullName"`
	Email       string   `json:"email"`
	PersonTypes []string `json:"personTypes"`
}

func (s *Server) handleUpdateContact(c *gin.Context) {
	personID := c.Param("personId")

	var req updateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var contacts []api.Contact
	if err := s.store.Load(c.Request.Context(), store.Contacts, &contacts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	for i := range contacts {
		if contacts[i].PersonID != personID {
			continue
		}
		if req.FullName != "" {
			contacts[i].FullName = req.FullName
		}
		if req.Email != "" {
			contacts[i].Email = req.Email
		}
		if req.PersonTypes != nil {
			contacts[i].PersonTypes = req.PersonTypes
		}
		contacts[i].UpdatedAt = nowISO()

		if err := s.store.Save(c.Request.Context(), store.Contacts, contacts); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"personId": personID})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
}

// ===== Expenses =====

func (s *Server) handleListExpenses(c *gin.Context) {
	var expenses []api.Expense
	if err := s.store.Load(c.Request.Context(), store.Expenses, &expenses); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if expenseID := c.Query("expenseId"); expenseID != "" {
		for _, expense := range expenses {
			if expense.ExpenseID == expenseID {
				c.JSON(http.StatusOK, []api.Expense{expense})
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "expense not found"})
		return
	}

	if expenses == nil {
		expenses = []api.Expense{}
	}
	c.JSON(http.StatusOK, expenses)
}

func (s *Server) handleCreateExpense(c *gin.Context) {
	var req api.NewExpense
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var expenses []api.Expense
	if err := s.store.Load(c.Request.Context(), store.Expenses, &expenses); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := nowISO()
	expenseID := uuid.NewString()
	expenses = append(expenses, api.Expense{
		ExpenseID:   expenseID,
		ProjectID:   req.ProjectID,
		Description: req.Description,
		Amount:      req.Amount,
		Date:        req.Date,
		Category:    req.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	})

	if err := s.store.Save(c.Request.Context(), store.Expenses, expenses); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "expenseId": expenseID})
}

type updateExpenseRequest struct {
	Description *string  `json:"description"`
	Amount      *float64 `json:"amount"`
	Date        *string  `json:"date"`
	Category    *string  `json:"category"`
}

func (s *Server) handleUpdateExpense(c *gin.Context) {
	expenseID := c.Query("expenseId")
	if expenseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expenseId is required"})
		return
	}

	var req updateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var expenses []api.Expense
	if err := s.store.Load(c.Request.Context(), store.Expenses, &expenses); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	for i := range expenses {
		if expenses[i].ExpenseID != expenseID {
			continue
		}
		if req.Description != nil {
			expenses[i].Description = *req.Description
		}
		if req.Amount != nil {
			expenses[i].Amount = *req.Amount
		}
		if req.Date != nil {
			expenses[i].Date = *req.Date
		}
		if req.Category != nil {
			expenses[i].Category = *req.Category
		}
		expenses[i].UpdatedAt = nowISO()

		if err := s.store.Save(c.Request.Context(), store.Expenses, expenses); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"expenseId": expenseID})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "expense not found"})
}

func (s *Server) handleDeleteExpense(c *gin.Context) {
	expenseID := c.Query("expenseId")
	if expenseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expenseId is required"})
		return
	}

	var expenses []api.Expense
	if err := s.store.Load(c.Request.Context(), store.Expenses, &expenses); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	for i := range expenses {
		if expenses[i].ExpenseID != expenseID {
			continue
		}
		expenses = append(expenses[:i], expenses[i+1:]...)

		if err := s.store.Save(c.Request.Context(), store.Expenses, expenses); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "expense not found"})
}

// ===== Invoices and time entries (placeholders) =====

func (s *Server) handleListInvoices(c *gin.Context) {
	invoices := []invoiceRecord{}
	if err := s.store.Load(c.Request.Context(), store.Invoices, &invoices); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, invoices)
}

func (s *Server) handleCreateInvoice(c *gin.Context) {
	var invoices []invoiceRecord
	if err := s.store.Load(c.Request.Context(), store.Invoices, &invoices); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	invoiceID := uuid.NewString()
	invoices = append(invoices, invoiceRecord{InvoiceID: invoiceID, CreatedAt: nowISO()})

	if err := s.store.Save(c.Request.Context(), store.Invoices, invoices); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invoiceId": invoiceID})
}

func (s *Server) handleListTimeEntries(c *gin.Context) {
	entries := []timeEntryRecord{}
	if err := s.store.Load(c.Request.Context(), store.TimeEntries, &entries); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleCreateTimeEntry(c *gin.Context) {
	var entries []timeEntryRecord
	if err := s.store.Load(c.Request.Context(), store.TimeEntries, &entries); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	entryID := uuid.NewString()
	entries = append(entries, timeEntryRecord{EntryID: entryID, CreatedAt: nowISO()})

	if err := s.store.Save(c.Request.Context(), store.TimeEntries, entries); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entryId": entryID})
}

// ===== Accounting sync =====

func (s *Server) handleAccountingSync(c *gin.Context) {
	var reports []api.OutcomeReport
	if err := c.ShouldBindJSON(&reports); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var status []syncStatusRecord
	if err := s.store.Load(c.Request.Context(), store.SyncStatus, &status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := nowISO()
	for _, report := range reports {
		status = append(status, syncStatusRecord{OutcomeReport: report, ReceivedAt: now})
	}

	if err := s.store.Save(c.Request.Context(), store.SyncStatus, status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
