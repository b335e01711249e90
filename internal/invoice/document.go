// Package invoice holds the editable invoice document: identity fields, dates
// and the ordered line items, together with the derived totals.
package invoice

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Line item fields accepted by UpdateLineItem.
const (
	FieldDescription = "description"
	FieldQuantity    = "quantity"
	FieldRate        = "rate"
)

// Header fields accepted by SetField.
const (
	FieldBusinessName    = "business.name"
	FieldBusinessAddress = "business.address"
	FieldBusinessEmail   = "business.email"
	FieldBusinessPhone   = "business.phone"
	FieldClientName      = "client.name"
	FieldClientAddress   = "client.address"
	FieldClientEmail     = "client.email"
	FieldNumber          = "number"
	FieldIssueDate       = "date"
	FieldDueDate         = "due_date"
	FieldLogo            = "logo"
)

type LineItem struct {
	ID          int
	Description string
	Quantity    int
	Rate        decimal.Decimal
}

// Amount is quantity × rate.
func (li LineItem) Amount() decimal.Decimal {
	return decimal.NewFromInt(int64(li.Quantity)).Mul(li.Rate)
}

type Party struct {
	Name    string
	Address string
	Email   string
	Phone   string
}

// Document is mutated in place by edits and is not safe for concurrent use;
// the view serializes access to it.
type Document struct {
	Business  Party
	Client    Party
	Number    string
	IssueDate time.Time
	DueDate   time.Time
	LogoURL   string
	TaxRate   decimal.Decimal

	items     []LineItem
	observers []func()
}

// New returns an empty document dated today with a single blank line item.
func New(today time.Time) *Document {
	day := truncateDay(today)
	return &Document{
		IssueDate: day,
		DueDate:   day,
		items:     []LineItem{newLineItem(1)},
	}
}

func newLineItem(id int) LineItem {
	return LineItem{ID: id, Quantity: 1, Rate: decimal.Zero}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OnChange registers fn to be called after every mutation.
func (d *Document) OnChange(fn func()) {
	d.observers = append(d.observers, fn)
}

func (d *Document) changed() {
	for _, fn := range d.observers {
		fn()
	}
}

// Items returns a copy of the line items in display order.
func (d *Document) Items() []LineItem {
	items := make([]LineItem, len(d.items))
	copy(items, d.items)
	return items
}

// Item returns the line item with the given id.
func (d *Document) Item(id int) (LineItem, bool) {
	if i := d.indexOf(id); i >= 0 {
		return d.items[i], true
	}
	return LineItem{}, false
}

func (d *Document) indexOf(id int) int {
	for i, item := range d.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// AddLineItem appends a blank item whose id is greater than every existing id.
func (d *Document) AddLineItem() LineItem {
	maxID := 0
	for _, item := range d.items {
		maxID = max(maxID, item.ID)
	}
	item := newLineItem(maxID + 1)
	d.items = append(d.items, item)
	d.changed()
	return item
}

// RemoveLineItem deletes the item with the given id. Removing the last
// remaining item or an unknown id does nothing.
func (d *Document) RemoveLineItem(id int) bool {
	if len(d.items) <= 1 {
		return false
	}
	i := d.indexOf(id)
	if i < 0 {
		return false
	}
	d.items = append(d.items[:i], d.items[i+1:]...)
	d.changed()
	return true
}

// UpdateLineItem replaces one field of the item with the given id. Numeric
// input that does not parse is stored as 0.
func (d *Document) UpdateLineItem(id int, field, value string) bool {
	i := d.indexOf(id)
	if i < 0 {
		return false
	}
	item := &d.items[i]
	switch field {
	case FieldDescription:
		item.Description = value
	case FieldQuantity:
		item.Quantity = ParseQuantity(value)
	case FieldRate:
		item.Rate = ParseRate(value)
	default:
		return false
	}
	d.changed()
	return true
}

// SetField updates a header field. Dates that do not parse leave the stored
// date unchanged.
func (d *Document) SetField(name, value string) bool {
	switch name {
	case FieldBusinessName:
		d.Business.Name = value
	case FieldBusinessAddress:
		d.Business.Address = value
	case FieldBusinessEmail:
		d.Business.Email = value
	case FieldBusinessPhone:
		d.Business.Phone = value
	case FieldClientName:
		d.Client.Name = value
	case FieldClientAddress:
		d.Client.Address = value
	case FieldClientEmail:
		d.Client.Email = value
	case FieldNumber:
		d.Number = value
	case FieldLogo:
		d.LogoURL = value
	case FieldIssueDate, FieldDueDate:
		t, err := time.Parse(DateLayout, value)
		if err != nil {
			return false
		}
		if name == FieldIssueDate {
			d.IssueDate = t
		} else {
			d.DueDate = t
		}
	default:
		return false
	}
	d.changed()
	return true
}

// Subtotal is the sum of every line amount.
func (d *Document) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range d.items {
		sum = sum.Add(item.Amount())
	}
	return sum
}

// Tax applies TaxRate to the subtotal. The rate is zero unless configured.
func (d *Document) Tax() decimal.Decimal {
	return d.Subtotal().Mul(d.TaxRate)
}

func (d *Document) Total() decimal.Decimal {
	return d.Subtotal().Add(d.Tax())
}

var (
	quantityPrefix = regexp.MustCompile(`^\s*[+-]?\d+`)
	ratePrefix     = regexp.MustCompile(`^\s*[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)
)

// ParseQuantity reads the leading integer of s, capped at math.MaxInt32.
// Anything unparsable or negative yields 0.
func ParseQuantity(s string) int {
	m := quantityPrefix.FindString(s)
	if m == "" {
		return 0
	}
	m = normalizeNumber(m)
	n, err := strconv.ParseInt(m, 10, 64)
	switch {
	case errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(m, "-"):
		return math.MaxInt32
	case err != nil || n < 0:
		return 0
	case n > math.MaxInt32:
		return math.MaxInt32
	}
	return int(n)
}

// ParseRate reads the leading decimal number of s as a float64. Anything
// unparsable, negative or out of float64 range yields 0.
func ParseRate(s string) decimal.Decimal {
	m := ratePrefix.FindString(s)
	if m == "" {
		return decimal.Zero
	}
	f, err := strconv.ParseFloat(normalizeNumber(m), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// normalizeNumber strips space, a leading plus sign and a dangling decimal
// point.
func normalizeNumber(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	s = strings.Replace(s, ".e", "e", 1)
	s = strings.Replace(s, ".E", "E", 1)
	return strings.TrimSuffix(s, ".")
}
