// Package validate collects per-field input errors so services can report every
// problem with a request at once.
package validate

import (
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Errors maps a request field onto a human readable message.
type Errors map[string]string

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation: ok"
	}
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return "validation: " + strings.Join(parts, "; ")
}

// Add records msg for field unless the field already has a message.
func (e Errors) Add(field, msg string) {
	if _, exists := e[field]; !exists {
		e[field] = msg
	}
}

// Required records a message when value is blank.
func (e Errors) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		e.Add(field, "This field is required.")
	}
}

// Positive records a message when amount is missing or not greater than zero.
func (e Errors) Positive(field string, amount *decimal.Decimal) {
	switch {
	case amount == nil:
		e.Add(field, "This field is required.")
	case !amount.IsPositive():
		e.Add(field, "Ensure this value is greater than 0.")
	}
}

// NonNegative records a message when amount is missing or below zero.
func (e Errors) NonNegative(field string, amount *decimal.Decimal) {
	switch {
	case amount == nil:
		e.Add(field, "This field is required.")
	case amount.IsNegative():
		e.Add(field, "Ensure this value is greater than or equal to 0.")
	}
}

// Money checks the numeric(10,2) shape used for every stored amount.
func (e Errors) Money(field string, amount *decimal.Decimal) {
	if amount == nil {
		return
	}
	placesOK, sizeOK := Fit(*amount)
	switch {
	case !placesOK:
		e.Add(field, "Ensure that there are no more than 2 decimal places.")
	case !sizeOK:
		e.Add(field, "Ensure that there are no more than 10 digits in total.")
	}
}

const moneyIntDigits = 8

var maxMoney = decimal.New(1, moneyIntDigits)

// Fit reports whether amount has at most two decimal places and whether it
// fits numeric(10,2). The exponent is bounded before any rescaling, so a
// value such as 1e2000000000 is rejected without expanding its coefficient.
func Fit(amount decimal.Decimal) (placesOK, sizeOK bool) {
	if amount.IsZero() {
		return true, true
	}
	exp := int64(amount.Exponent())
	digits := int64(amount.NumDigits())
	if exp > 0 {
		return true, digits+exp <= moneyIntDigits
	}
	if exp < -2 {
		// every digit past the second decimal place must be a trailing zero
		if -exp-2 >= digits {
			return false, true
		}
		if !amount.Equal(amount.Round(2)) {
			return false, amount.Abs().LessThan(maxMoney)
		}
	}
	return true, amount.Abs().LessThan(maxMoney)
}

// Err returns nil when no field failed, so callers can `return v.Err()`.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// As extracts field errors from err.
func As(err error) (Errors, bool) {
	var v Errors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
