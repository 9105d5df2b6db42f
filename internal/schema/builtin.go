package schema

import (
	"sort"
	"strings"
)

// LineItem is the shape of one invoice or receipt line.
var LineItem = []Field{
	{Name: "name", Type: String},
	{Name: "quantity", Type: Number},
	{Name: "unit_price_with_taxes", Type: Number},
	{Name: "unit_price_without_taxes", Type: Number},
	{Name: "amount", Type: Number},
	{Name: "taxes", Type: Number},
	{Name: "taxes_percentage", Type: Number},
}

var Invoice = New("InvoiceData",
	Field{Name: "invoice_number", Type: String},
	Field{Name: "date", Type: String},
	Field{Name: "due_date", Type: String},
	Field{Name: "total_amount", Type: Number},
	Field{Name: "currency", Type: String},
	Field{Name: "vendor_name", Type: String},
	Field{Name: "vendor_address", Type: String},
	Field{Name: "vendor_tax_id", Type: String},
	Field{Name: "customer_name", Type: String},
	Field{Name: "customer_address", Type: String},
	Field{Name: "line_items", Type: Array, Items: LineItem},
	Field{Name: "tax_amount", Type: Number},
	Field{Name: "subtotal", Type: Number},
	Field{Name: "discount", Type: Number},
)

var Receipt = New("ReceiptData",
	Field{Name: "merchant_name", Type: String},
	Field{Name: "merchant_address", Type: String},
	Field{Name: "date", Type: String},
	Field{Name: "time", Type: String},
	Field{Name: "total", Type: Number},
	Field{Name: "subtotal", Type: Number},
	Field{Name: "tax", Type: Number},
	Field{Name: "items", Type: Array, Items: LineItem},
	Field{Name: "payment_method", Type: String},
	Field{Name: "card_last_four", Type: String},
	Field{Name: "currency", Type: String},
)

var builtins = map[string]Schema{
	"invoice": Invoice,
	"receipt": Receipt,
}

// Lookup finds a built-in by doc type ("invoice") or type name ("InvoiceData"), case-insensitively.
func Lookup(name string) (Schema, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if s, ok := builtins[key]; ok {
		return s, true
	}
	for _, s := range builtins {
		if strings.EqualFold(s.Name, key) {
			return s, true
		}
	}
	return Schema{}, false
}

func BuiltinNames() []string {
	out := make([]string, 0, len(builtins))
	for k := range builtins {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
