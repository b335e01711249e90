package invoice

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

type fileParty struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

type fileItem struct {
	Description string          `json:"description"`
	Quantity    json.RawMessage `json:"quantity"`
	Rate        json.RawMessage `json:"rate"`
}

type fileDocument struct {
	Business fileParty       `json:"business"`
	Client   fileParty       `json:"client"`
	Number   string          `json:"number"`
	Date     string          `json:"date"`
	DueDate  string          `json:"due_date"`
	Logo     string          `json:"logo"`
	TaxRate  json.RawMessage `json:"tax_rate"`
	Items    []fileItem      `json:"items"`
}

// Decode reads a JSON invoice. Quantities and rates may be numbers or strings
// and get the same coercion as edits; missing dates default to today.
func Decode(r io.Reader, today time.Time) (*Document, error) {
	var f fileDocument
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode invoice: %w", err)
	}

	doc := New(today)
	doc.Business = Party(f.Business)
	doc.Client = Party{Name: f.Client.Name, Address: f.Client.Address, Email: f.Client.Email}
	doc.Number = f.Number
	doc.LogoURL = f.Logo
	doc.TaxRate = ParseRate(rawText(f.TaxRate))
	if f.Date != "" {
		doc.SetField(FieldIssueDate, f.Date)
	}
	if f.DueDate != "" {
		doc.SetField(FieldDueDate, f.DueDate)
	}

	for i, item := range f.Items {
		id := doc.items[0].ID
		if i > 0 {
			id = doc.AddLineItem().ID
		}
		doc.UpdateLineItem(id, FieldDescription, item.Description)
		if len(item.Quantity) > 0 {
			doc.UpdateLineItem(id, FieldQuantity, rawText(item.Quantity))
		}
		doc.UpdateLineItem(id, FieldRate, rawText(item.Rate))
	}
	return doc, nil
}

func rawText(raw json.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}
