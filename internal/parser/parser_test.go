package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cleanJSON = `{"store_name": "Biedronka", "date": "2024-03-15", "total_amount": 12.47,
 "items": [
  {"name": "Mleko UHT 1L", "quantity": 2, "price": 3.49, "total": 6.98, "category": "Nabiał"},
  {"name": "Chleb żytni", "quantity": 1, "price": 5.49, "total": 5.49}
 ],
 "payment_method": "karta"}`

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertCleanReceipt(t *testing.T, r *Receipt) {
	t.Helper()
	assert.Equal(t, "Biedronka", r.StoreName)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), r.Date)
	assert.True(t, r.TotalAmount.Equal(dec("12.47")), r.TotalAmount.String())
	require.Len(t, r.Items, 2)
	assert.Equal(t, "Mleko UHT 1L", r.Items[0].Name)
	assert.True(t, r.Items[0].Quantity.Equal(dec("2")))
	assert.True(t, r.Items[0].Price.Equal(dec("3.49")))
	assert.True(t, r.Items[0].Total.Equal(dec("6.98")))
	assert.Equal(t, "Nabiał", r.Items[0].Category)
	assert.Equal(t, "", r.Items[1].Category)
	assert.Equal(t, "karta", r.PaymentMethod)
}

func TestParseClean(t *testing.T) {
	r, err := Parse(cleanJSON)
	require.NoError(t, err)
	assertCleanReceipt(t, r)
}

func TestParseTolerance(t *testing.T) {
	trailing := `{"store_name": "Biedronka", "date": "2024-03-15", "total_amount": 12.47,
 "items": [
  {"name": "Mleko UHT 1L", "quantity": 2, "price": 3.49, "total": 6.98, "category": "Nabiał",},
  {"name": "Chleb żytni", "quantity": 1, "price": 5.49, "total": 5.49},
 ],
 "payment_method": "karta",}`

	cases := map[string]string{
		"fenced":          "```json\n" + cleanJSON + "\n```",
		"bare fence":      "```\n" + cleanJSON + "\n```",
		"prose":           "Oto wynik analizy paragonu: " + cleanJSON + " Daj znać, jeśli coś poprawić.",
		"trailing commas": trailing,
		"single quotes": `{'store_name': 'Biedronka', 'date': '2024-03-15', 'total_amount': 12.47,
 'items': [{'name': 'Mleko UHT 1L', 'quantity': 2, 'price': 3.49, 'total': 6.98, 'category': 'Nabiał'},
           {'name': 'Chleb żytni', 'quantity': 1, 'price': 5.49, 'total': 5.49}],
 'payment_method': 'karta'}`,
		"tool call":        `<tool_call>{"name": "save_receipt", "arguments": ` + cleanJSON + `}</tool_call>`,
		"string arguments": `{"name": "save_receipt", "arguments": "{\"store_name\": \"Biedronka\", \"date\": \"2024-03-15\", \"total_amount\": 12.47, \"items\": [{\"name\": \"Mleko UHT 1L\", \"quantity\": 2, \"price\": 3.49, \"total\": 6.98, \"category\": \"Nabiał\"}, {\"name\": \"Chleb żytni\", \"quantity\": 1, \"price\": 5.49, \"total\": 5.49}], \"payment_method\": \"karta\"}"}`,
		"openai tool_calls": `{"tool_calls": [{"function": {"name": "save_receipt", "arguments": ` + cleanJSON + `}}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			r, err := Parse(raw)
			require.NoError(t, err)
			assertCleanReceipt(t, r)
		})
	}
}

func TestParseLenientValues(t *testing.T) {
	raw := `{"store_name": " Lidl ", "date": "15.03.2024", "total_amount": "12,47 zł",
	"items": [{"name": "Banany", "price": "4,99", "total": "4,99"},
	          {"name": "Woda", "quantity": null, "price": 2.5, "total": 2.5},
	          {"name": "Jabłka", "quantity": "1,5 kg", "price": 3, "total": 4.5}],
	"tax_id": 1234567890}`
	r, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Lidl", r.StoreName)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), r.Date)
	assert.True(t, r.TotalAmount.Equal(dec("12.47")))
	assert.True(t, r.Items[0].Quantity.Equal(dec("1")))
	assert.True(t, r.Items[0].Price.Equal(dec("4.99")))
	assert.True(t, r.Items[1].Quantity.Equal(dec("1")))
	assert.True(t, r.Items[2].Quantity.Equal(dec("1.5")))
	assert.Equal(t, "1234567890", r.TaxID)
}

func TestParseRejectsEmptyStoreName(t *testing.T) {
	raw := `{"store_name": "", "date": "2024-01-01", "total_amount": 10,
	"items": [{"name": "Mleko", "quantity": 1, "price": 10, "total": 10}]}`
	_, err := Parse(raw)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "store_name", ve.Field)
	assert.Contains(t, err.Error(), "store_name")
}

func TestParseValidationFieldPaths(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing store", `{"date": "2024-01-01", "total_amount": 10, "items": [{"name": "a", "quantity": 1, "price": 1, "total": 1}]}`, "store_name"},
		{"bad date", `{"store_name": "x", "date": "2024-13-45", "total_amount": 10, "items": [{"name": "a", "quantity": 1, "price": 1, "total": 1}]}`, "date"},
		{"zero total", `{"store_name": "x", "date": "2024-01-01", "total_amount": 0, "items": [{"name": "a", "quantity": 1, "price": 1, "total": 1}]}`, "total_amount"},
		{"no items", `{"store_name": "x", "date": "2024-01-01", "total_amount": 10, "items": []}`, "items"},
		{"negative price", `{"store_name": "x", "date": "2024-01-01", "total_amount": 10, "items": [{"name": "a", "quantity": 1, "price": 1, "total": 1}, {"name": "b", "quantity": 1, "price": -2, "total": 1}]}`, "items[1].price"},
		{"missing item name", `{"store_name": "x", "date": "2024-01-01", "total_amount": 10, "items": [{"quantity": 1, "price": 1, "total": 1}]}`, "items[0].name"},
		{"zero quantity", `{"store_name": "x", "date": "2024-01-01", "total_amount": 10, "items": [{"name": "a", "quantity": 0, "price": 1, "total": 1}]}`, "items[0].quantity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.raw)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestParseDecodeErrors(t *testing.T) {
	for _, raw := range []string{
		"",
		"Przepraszam, nie mogę odczytać tego paragonu.",
		`{"store_name": "x", "items": [`,
		`{"store_name": "x" "date": "2024-01-01"}`,
	} {
		_, err := Parse(raw)
		var de *DecodeError
		assert.True(t, errors.As(err, &de), "%q: %v", raw, err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	in := &Receipt{
		StoreName:   "Żabka",
		Date:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		TotalAmount: dec("19.98"),
		Items: []Item{
			{Name: "Kawa", Quantity: dec("2"), Price: dec("9.99"), Total: dec("19.98"), Category: "Napoje"},
		},
		TaxID: "123-456-78-90",
	}
	b, err := Marshal(in)
	require.NoError(t, err)
	out, err := Parse(string(b))
	require.NoError(t, err)
	assert.Equal(t, in.StoreName, out.StoreName)
	assert.Equal(t, in.Date, out.Date)
	assert.True(t, in.TotalAmount.Equal(out.TotalAmount))
	require.Len(t, out.Items, 1)
	assert.Equal(t, in.Items[0].Name, out.Items[0].Name)
	assert.True(t, in.Items[0].Price.Equal(out.Items[0].Price))
	assert.Equal(t, in.TaxID, out.TaxID)
}

func TestPointerToPath(t *testing.T) {
	assert.Equal(t, "", pointerToPath(""))
	assert.Equal(t, "store_name", pointerToPath("/store_name"))
	assert.Equal(t, "items[0].price", pointerToPath("/items/0/price"))
}
