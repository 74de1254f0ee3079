package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	reLooseNumber = regexp.MustCompile(`(?i)^(-?\d+(?:\.\d+)?)\s*(?:zł|zl|pln|szt\.?|kg|g|l|x)?$`)
	reDotDate     = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})[./-](\d{4})$`)
	reSlashISO    = regexp.MustCompile(`^(\d{4})[./](\d{1,2})[./](\d{1,2})$`)
)

// Parse extracts, repairs and validates a receipt from raw model output.
// It performs no I/O.
func Parse(raw string) (*Receipt, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &DecodeError{Reason: "empty response"}
	}

	doc, err := locateObject(text)
	if err != nil {
		return nil, err
	}
	doc, err = unwrapEnvelope(doc)
	if err != nil {
		return nil, &DecodeError{Reason: "tool call arguments are not valid JSON", Err: err}
	}

	normalize(doc)
	if err := validate(doc); err != nil {
		return nil, err
	}
	return toReceipt(doc)
}

// locateObject tries every balanced object in the text (after fence
// stripping) and returns the first one that decodes.
func locateObject(text string) (map[string]any, error) {
	var firstErr error
	for _, src := range []string{stripFences(text), text} {
		for _, cand := range balancedObjects(src) {
			m, err := decodeLenient(cand)
			if err == nil {
				return m, nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return nil, &DecodeError{Reason: "invalid JSON", Err: firstErr}
	}
	return nil, &DecodeError{Reason: "no JSON object found"}
}

// normalize applies lenient fixes before validation: trimmed strings,
// comma decimals, quantity defaulting to 1, DD.MM.YYYY dates.
func normalize(doc map[string]any) {
	trimString(doc, "store_name")
	if s, ok := doc["date"].(string); ok {
		doc["date"] = normalizeDate(strings.TrimSpace(s))
	}
	coerceNumber(doc, "total_amount")
	optionalString(doc, "tax_id")
	optionalString(doc, "payment_method")

	items, ok := doc["items"].([]any)
	if !ok {
		return
	}
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		trimString(m, "name")
		if v, present := m["quantity"]; !present || v == nil {
			m["quantity"] = json.Number("1")
		}
		coerceNumber(m, "quantity")
		coerceNumber(m, "price")
		coerceNumber(m, "total")
		optionalString(m, "category")
	}
}

func trimString(m map[string]any, key string) {
	if s, ok := m[key].(string); ok {
		m[key] = strings.TrimSpace(s)
	}
}

func optionalString(m map[string]any, key string) {
	switch v := m[key].(type) {
	case nil:
		delete(m, key)
	case json.Number:
		m[key] = v.String()
	case string:
		if s := strings.TrimSpace(v); s == "" {
			delete(m, key)
		} else {
			m[key] = s
		}
	}
}

func coerceNumber(m map[string]any, key string) {
	s, ok := m[key].(string)
	if !ok {
		return
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", " ")
	s = strings.Replace(s, ",", ".", 1)
	match := reLooseNumber.FindStringSubmatch(s)
	if match == nil {
		return
	}
	if d, err := decimal.NewFromString(match[1]); err == nil {
		m[key] = json.Number(d.String())
	}
}

func normalizeDate(s string) string {
	if m := reDotDate.FindStringSubmatch(s); m != nil {
		return isoDate(m[3], m[2], m[1])
	}
	if m := reSlashISO.FindStringSubmatch(s); m != nil {
		return isoDate(m[1], m[2], m[3])
	}
	return s
}

func isoDate(y, m, d string) string {
	mm, _ := strconv.Atoi(m)
	dd, _ := strconv.Atoi(d)
	return fmt.Sprintf("%s-%02d-%02d", y, mm, dd)
}

func toReceipt(doc map[string]any) (*Receipt, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, &DecodeError{Reason: "re-encode", Err: err}
	}
	var w wireReceipt
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, &DecodeError{Reason: "decode receipt", Err: err}
	}
	date, err := time.Parse(dateLayout, w.Date)
	if err != nil {
		return nil, &ValidationError{Field: "date", Reason: "not an ISO calendar date"}
	}
	total, err := decimal.NewFromString(w.TotalAmount.String())
	if err != nil {
		return nil, &ValidationError{Field: "total_amount", Reason: "not a number"}
	}
	r := &Receipt{
		StoreName:   w.StoreName,
		Date:        date,
		TotalAmount: total,
		Items:       make([]Item, 0, len(w.Items)),
	}
	if w.TaxID != nil {
		r.TaxID = *w.TaxID
	}
	if w.PaymentMethod != nil {
		r.PaymentMethod = *w.PaymentMethod
	}
	for i, wi := range w.Items {
		it := Item{Name: wi.Name}
		for _, f := range []struct {
			name string
			src  json.Number
			dst  *decimal.Decimal
		}{{"quantity", wi.Quantity, &it.Quantity}, {"price", wi.Price, &it.Price}, {"total", wi.Total, &it.Total}} {
			d, err := decimal.NewFromString(f.src.String())
			if err != nil {
				return nil, &ValidationError{Field: fmt.Sprintf("items[%d].%s", i, f.name), Reason: "not a number"}
			}
			*f.dst = d
		}
		if wi.Category != nil {
			it.Category = *wi.Category
		}
		r.Items = append(r.Items, it)
	}
	return r, nil
}

// Marshal renders r in the wire format Parse accepts.
func Marshal(r *Receipt) ([]byte, error) {
	w := wireReceipt{
		StoreName:   r.StoreName,
		Date:        r.Date.Format(dateLayout),
		TotalAmount: json.Number(r.TotalAmount.String()),
		Items:       make([]wireItem, 0, len(r.Items)),
	}
	if r.TaxID != "" {
		w.TaxID = &r.TaxID
	}
	if r.PaymentMethod != "" {
		w.PaymentMethod = &r.PaymentMethod
	}
	for _, it := range r.Items {
		wi := wireItem{
			Name:     it.Name,
			Quantity: json.Number(it.Quantity.String()),
			Price:    json.Number(it.Price.String()),
			Total:    json.Number(it.Total.String()),
		}
		if it.Category != "" {
			c := it.Category
			wi.Category = &c
		}
		w.Items = append(w.Items, wi)
	}
	return json.Marshal(w)
}
