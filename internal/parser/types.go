// Package parser turns raw model output into a validated receipt.
package parser

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type Item struct {
	Name     string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Total    decimal.Decimal
	Category string
}

type Receipt struct {
	StoreName     string
	Date          time.Time
	TotalAmount   decimal.Decimal
	Items         []Item
	TaxID         string
	PaymentMethod string
}

// ValidationError reports a schema violation at a field path such as
// "store_name" or "items[0].price".
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid receipt: " + e.Reason
	}
	return fmt.Sprintf("invalid receipt field %s: %s", e.Field, e.Reason)
}

// DecodeError reports text that could not be turned into a JSON object.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed model response: %s: %v", e.Reason, e.Err)
	}
	return "malformed model response: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

type wireItem struct {
	Name     string      `json:"name"`
	Quantity json.Number `json:"quantity"`
	Price    json.Number `json:"price"`
	Total    json.Number `json:"total"`
	Category *string     `json:"category,omitempty"`
}

type wireReceipt struct {
	StoreName     string      `json:"store_name"`
	Date          string      `json:"date"`
	TotalAmount   json.Number `json:"total_amount"`
	Items         []wireItem  `json:"items"`
	TaxID         *string     `json:"tax_id,omitempty"`
	PaymentMethod *string     `json:"payment_method,omitempty"`
}
