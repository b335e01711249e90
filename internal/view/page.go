package view

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/pwnholic/invsnap/internal/invoice"
)

type itemRow struct {
	ID          int
	Description string
	Quantity    string
	Rate        string
	Amount      string
}

// page is the template input; every monetary value is already formatted.
type page struct {
	Business   invoice.Party
	Client     invoice.Party
	Number     string
	IssueDate  string
	DueDate    string
	LogoURL    string
	Items      []itemRow
	Single     bool
	Subtotal   string
	Tax        string
	TaxPercent string
	Total      string
}

func newPage(doc *invoice.Document, cur invoice.Currency) page {
	items := doc.Items()
	p := page{
		Business:   doc.Business,
		Client:     doc.Client,
		Number:     doc.Number,
		IssueDate:  doc.IssueDate.Format(invoice.DateLayout),
		DueDate:    doc.DueDate.Format(invoice.DateLayout),
		LogoURL:    doc.LogoURL,
		Single:     len(items) == 1,
		Subtotal:   cur.Format(doc.Subtotal()),
		Tax:        cur.Format(doc.Tax()),
		TaxPercent: doc.TaxRate.Mul(decimal.NewFromInt(100)).String(),
		Total:      cur.Format(doc.Total()),
	}
	for _, item := range items {
		p.Items = append(p.Items, itemRow{
			ID:          item.ID,
			Description: item.Description,
			Quantity:    strconv.Itoa(item.Quantity),
			Rate:        item.Rate.String(),
			Amount:      cur.Format(item.Amount()),
		})
	}
	return p
}
