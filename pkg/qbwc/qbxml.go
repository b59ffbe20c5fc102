package qbwc

import (
	"encoding/xml"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/practicebridge/ledgersync/pkg/api"
)

// The bridge walks a fixed two-step query sequence per connector session:
// customers first, then invoices with line items.
const customerQueryXML = `<?xml version="1.0"?>
<?qbxml version="13.0"?>
<QBXML>
    <QBXMLMsgsRq onError="stopOnError">
        <CustomerQueryRq requestID="1">
            <MaxReturned>10</MaxReturned>
        </CustomerQueryRq>
    </QBXMLMsgsRq>
</QBXML>`

const invoiceQueryXML = `<?xml version="1.0"?>
<?qbxml version="13.0"?>
<QBXML>
    <QBXMLMsgsRq onError="stopOnError">
        <InvoiceQueryRq requestID="2">
            <MaxReturned>10</MaxReturned>
            <IncludeLineItems>true</IncludeLineItems>
        </InvoiceQueryRq>
    </QBXMLMsgsRq>
</QBXML>`

type customerRet struct {
	ListID   string `xml:"ListID"`
	FullName string `xml:"FullName"`
	Email    string `xml:"Email"`
}

type expenseLineRet struct {
	Amount          string `xml:"Amount"`
	Memo            string `xml:"Memo"`
	AccountFullName string `xml:"AccountRef>FullName"`
}

type invoiceRet struct {
	TxnID          string           `xml:"TxnID"`
	CustomerListID string           `xml:"CustomerRef>ListID"`
	TxnDate        string           `xml:"TxnDate"`
	ExpenseLines   []expenseLineRet `xml:"ExpenseLineRet"`
}

type qbxmlResponse struct {
	XMLName xml.Name `xml:"QBXML"`
	MsgsRs  struct {
		CustomerQueryRs *struct {
			Customers []customerRet `xml:"CustomerRet"`
		} `xml:"CustomerQueryRs"`
		InvoiceQueryRs *struct {
			Invoices []invoiceRet `xml:"InvoiceRet"`
		} `xml:"InvoiceQueryRs"`
	} `xml:"QBXMLMsgsRs"`
}

func parseQBXMLResponse(payload string) (*qbxmlResponse, error) {
	var resp qbxmlResponse
	if err := xml.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, errors.Wrap(err, "parsing qbXML response")
	}
	return &resp, nil
}

// contactFromCustomer maps a qbXML customer onto a target contact payload,
// defaulting the email from the list id.
func contactFromCustomer(c customerRet) api.NewContact {
	email := c.Email
	if email == "" {
		email = c.ListID + "@example.com"
	}
	return api.NewContact{
		FullName:    c.FullName,
		Email:       email,
		PersonTypes: []string{"Client"},
	}
}

// expenseFromLine maps one qbXML expense line onto a target expense payload.
func expenseFromLine(inv invoiceRet, line expenseLineRet, now func() time.Time) api.NewExpense {
	amount, err := strconv.ParseFloat(line.Amount, 64)
	if err != nil {
		amount = 0
	}

	category := line.AccountFullName
	if category == "" {
		category = "General Expense"
	}

	date := inv.TxnDate
	if date == "" {
		date = now().Format("2006-01-02")
	}

	return api.NewExpense{
		ProjectID:   inv.CustomerListID,
		Description: line.Memo,
		Amount:      amount,
		Date:        date,
		Category:    category,
	}
}
