package document

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders "NPR 5,000" or "USD 12.50". Whole amounts drop the fraction.
func FormatAmount(currency string, amount decimal.Decimal) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "NPR"
	}
	amount = amount.Round(2)
	if amount.Equal(amount.Truncate(0)) {
		return amountPrinter.Sprintf("%s %d", currency, amount.IntPart())
	}
	f, _ := amount.Float64()
	return amountPrinter.Sprintf("%s %.2f", currency, f)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("January 2, 2006")
}

// latin1 reports whether the core PDF fonts can draw s.
func latin1(s string) bool {
	for _, r := range s {
		if r > 0xFF {
			return false
		}
	}
	return true
}

// humanize title-cases each word and keeps acronyms such as "IME" intact.
func humanize(s string) string {
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " ")
	if s == "" {
		return s
	}
	// A Caser carries state, so one is built per call.
	return cases.Title(language.Und, cases.NoLower).String(s)
}
