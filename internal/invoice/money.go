package invoice

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Currency is the single presentation rule for every monetary value.
type Currency struct {
	Code   string // ISO 4217, e.g. "USD"
	Locale string // BCP 47, e.g. "en-US"
}

var DefaultCurrency = Currency{Code: "USD", Locale: "en-US"}

func (c Currency) unit() currency.Unit {
	unit, err := currency.ParseISO(c.Code)
	if err != nil {
		return currency.USD
	}
	return unit
}

func (c Currency) tag() language.Tag {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.AmericanEnglish
	}
	return tag
}

// exactLimit bounds the amounts formatted through float64 without losing
// cents.
var exactLimit = decimal.New(1, 15)

// Format renders amount with the currency's narrow symbol and standard
// number of fraction digits, grouped per locale: 1234.5 → "$1,234.50".
// The amount itself is not modified.
func (c Currency) Format(amount decimal.Decimal) string {
	unit := c.unit()
	scale, _ := currency.Standard.Rounding(unit)
	p := message.NewPrinter(c.tag())

	rounded := amount.Round(int32(scale))
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Neg()
	}

	symbol := p.Sprint(currency.NarrowSymbol(unit))
	if rounded.LessThan(exactLimit) {
		return sign + symbol + p.Sprint(number.Decimal(rounded.InexactFloat64(), number.Scale(scale)))
	}
	return sign + symbol + groupDigits(p, rounded.StringFixed(int32(scale)))
}

// groupDigits applies the printer's group and decimal separators to a plain
// "1234567.89" string.
func groupDigits(p *message.Printer, plain string) string {
	group, point := separators(p)
	whole, frac, hasFrac := strings.Cut(plain, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(group)
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteString(point)
		b.WriteString(frac)
	}
	return b.String()
}

// separators reads the locale's separators off a formatted 1234.5.
func separators(p *message.Printer) (group, point string) {
	sample := p.Sprint(number.Decimal(1234.5, number.Scale(1)))
	i1, i2 := strings.Index(sample, "1"), strings.Index(sample, "2")
	i4, i5 := strings.Index(sample, "4"), strings.Index(sample, "5")
	if i1 < 0 || i2 < i1 || i4 < i2 || i5 < i4 {
		return ",", "."
	}
	return sample[i1+1 : i2], sample[i4+1 : i5]
}
