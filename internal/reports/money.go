package reports

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MoneyFormatter renders decimal amounts for one configured locale and
// currency. Construct it once from config and inject it; there is no
// package-level default.
type MoneyFormatter struct {
	printer *message.Printer
	unit    currency.Unit
}

// NewMoneyFormatter parses a BCP47 locale tag and an ISO 4217 currency
// code.
func NewMoneyFormatter(locale, currencyCode string) (*MoneyFormatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("parse currency %q: %w", currencyCode, err)
	}
	return &MoneyFormatter{printer: message.NewPrinter(tag), unit: unit}, nil
}

// Format renders the amount with a currency symbol and locale digit
// grouping.
func (f *MoneyFormatter) Format(amount decimal.Decimal) string {
	value, _ := amount.Float64()
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(value)))
}
