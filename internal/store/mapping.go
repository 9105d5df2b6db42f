package store

import "github.com/SIMOUNIX/harvestor/internal/common"

// Generic columns every stored harvest carries, whatever its schema.
const (
	ColEntityName     = "entity_name"
	ColEntityID       = "entity_id"
	ColDocumentNumber = "document_number"
	ColTotalAmount    = "total_amount"
	ColCurrency       = "currency"
	ColBankAccount    = "bank_account"
	ColBankRouting    = "bank_routing"
)

var genericColumns = []string{
	ColEntityName, ColEntityID, ColDocumentNumber, ColTotalAmount,
	ColCurrency, ColBankAccount, ColBankRouting,
}

// FieldMapping maps a generic column to the schema field that fills it.
// A missing or empty entry leaves the column NULL.
type FieldMapping map[string]string

// DefaultFieldMappings covers the built-in document types.
func DefaultFieldMappings() map[string]FieldMapping {
	return map[string]FieldMapping{
		"invoice": {
			ColEntityName:     "vendor_name",
			ColEntityID:       "vendor_tax_id",
			ColDocumentNumber: "invoice_number",
			ColTotalAmount:    "total_amount",
			ColCurrency:       "currency",
		},
		"receipt": {
			ColEntityName:  "merchant_name",
			ColTotalAmount: "total",
			ColCurrency:    "currency",
		},
	}
}

func validateMapping(m FieldMapping) error {
	for col := range m {
		known := false
		for _, g := range genericColumns {
			if g == col {
				known = true
				break
			}
		}
		if !known {
			return common.NewAppError(common.CodeStore, "unknown generic column "+col, common.ErrInvalidInput)
		}
	}
	return nil
}

// generic pulls the mapped values out of extracted data.
type generic struct {
	EntityName     *string
	EntityID       *string
	DocumentNumber *string
	TotalAmount    *float64
	Currency       *string
	BankAccount    *string
	BankRouting    *string
}

func extractGeneric(m FieldMapping, data map[string]any) generic {
	str := func(col string) *string {
		field := m[col]
		if field == "" {
			return nil
		}
		s, ok := data[field].(string)
		if !ok || s == "" {
			return nil
		}
		return &s
	}
	var g generic
	g.EntityName = str(ColEntityName)
	g.EntityID = str(ColEntityID)
	g.DocumentNumber = str(ColDocumentNumber)
	g.Currency = str(ColCurrency)
	g.BankAccount = str(ColBankAccount)
	g.BankRouting = str(ColBankRouting)
	if field := m[ColTotalAmount]; field != "" {
		switch v := data[field].(type) {
		case float64:
			g.TotalAmount = &v
		case int:
			f := float64(v)
			g.TotalAmount = &f
		case int64:
			f := float64(v)
			g.TotalAmount = &f
		}
	}
	return g
}
