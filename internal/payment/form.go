package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Form holds the card details typed by the user.
type Form struct {
	CardNumber     string `json:"cardNumber"`
	ExpiryDate     string `json:"expiryDate"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholderName"`
}

// Masked returns the form with the card number reduced to its last four
// digits and the CVV removed, suitable for echoing back to the client.
func (f Form) Masked() Form {
	digits := onlyDigits(f.CardNumber)
	masked := ""
	if len(digits) >= 4 {
		masked = "•••• " + digits[len(digits)-4:]
	}
	return Form{CardNumber: masked, ExpiryDate: f.ExpiryDate, CardholderName: f.CardholderName}
}

// FieldError describes one invalid form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors lists every invalid field of a form.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, e := range fe {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return "invalid payment form: " + strings.Join(parts, "; ")
}

const maxCardDigits = 19

// FormatCardNumber keeps digits only and groups them by four.
func FormatCardNumber(value string) string {
	digits := onlyDigits(value)
	if len(digits) > maxCardDigits {
		digits = digits[:maxCardDigits]
	}
	if len(digits) < 4 {
		return digits
	}
	var b strings.Builder
	for i := 0; i < len(digits); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := min(i+4, len(digits))
		b.WriteString(digits[i:end])
	}
	return b.String()
}

// FormatExpiryDate turns typed digits into MM/YY.
func FormatExpiryDate(value string) string {
	digits := onlyDigits(value)
	if len(digits) >= 2 {
		return digits[:2] + "/" + digits[2:min(4, len(digits))]
	}
	return digits
}

// Normalize applies the input masks to every field.
func Normalize(f Form) Form {
	return Form{
		CardNumber:     FormatCardNumber(f.CardNumber),
		ExpiryDate:     FormatExpiryDate(f.ExpiryDate),
		CVV:            onlyDigits(f.CVV),
		CardholderName: strings.Join(strings.Fields(f.CardholderName), " "),
	}
}

// Validate checks all fields and reports every problem at once. An expired
// card is reported regardless of other errors.
func Validate(f Form, now time.Time) FieldErrors {
	var errs FieldErrors
	add := func(field, msg string) { errs = append(errs, FieldError{Field: field, Message: msg}) }

	card := strings.ReplaceAll(f.CardNumber, " ", "")
	switch {
	case card == "":
		add("cardNumber", "Card number is required")
	case onlyDigits(card) != card, len(card) < 13, len(card) > maxCardDigits:
		add("cardNumber", "Invalid card number")
	}

	switch month, year, ok := parseExpiry(f.ExpiryDate); {
	case strings.TrimSpace(f.ExpiryDate) == "":
		add("expiryDate", "Expiry date is required")
	case !ok || month < 1 || month > 12:
		add("expiryDate", "Invalid expiry date")
	case expired(month, year, now):
		add("expiryDate", "Card has expired")
	}

	switch cvv := f.CVV; {
	case cvv == "":
		add("cvv", "CVV is required")
	case onlyDigits(cvv) != cvv, len(cvv) < 3, len(cvv) > 4:
		add("cvv", "Invalid CVV")
	}

	if strings.TrimSpace(f.CardholderName) == "" {
		add("cardholderName", "Cardholder name is required")
	}
	return errs
}

func parseExpiry(v string) (month, year int, ok bool) {
	mm, yy, found := strings.Cut(strings.TrimSpace(v), "/")
	if !found || len(mm) != 2 || len(yy) != 2 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, 0, false
	}
	y, err := strconv.Atoi(yy)
	if err != nil {
		return 0, 0, false
	}
	return m, 2000 + y, true
}

func expired(month, year int, now time.Time) bool {
	curYear, curMonth := now.Year(), int(now.Month())
	return year < curYear || (year == curYear && month < curMonth)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
