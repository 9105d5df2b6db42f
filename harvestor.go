// Package harvestor extracts structured data from documents with a language model
// while keeping a ledger of what every call cost.
//
// Inputs may be a file path, raw bytes or an io.Reader. Images are sent to a vision model;
// text and PDF text layers are sent as a prompt. The model's JSON is parsed, coerced to the
// output schema and returned in a Result.
//
//	res, err := harvestor.Harvest(ctx, "invoice.pdf", "", harvestor.WithModel("claude-haiku"))
//	if err != nil {
//		log.Printf("%s: %v", res.ErrorKind, err)
//	}
//	fmt.Println(res.Data["invoice_number"], res.TotalCost)
package harvestor

import (
	"context"

	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/cost"
	"github.com/SIMOUNIX/harvestor/internal/harvest"
	"github.com/SIMOUNIX/harvestor/internal/schema"
	"github.com/SIMOUNIX/harvestor/internal/validate"
)

type (
	Harvester  = harvest.Harvester
	Result     = harvest.Result
	Option     = harvest.Option
	CallOption = harvest.CallOption
	Store      = harvest.Store

	Schema    = schema.Schema
	Field     = schema.Field
	FieldType = schema.Type

	Tracker    = cost.Tracker
	Limits     = cost.Limits
	CostRecord = cost.Record
	LimitError = cost.LimitError

	ValidationReport = validate.Report
	Rule             = validate.Rule
	Finding          = validate.Finding
)

// Error kinds. Match with errors.Is; none of them is retried.
var (
	ErrUnsupportedInput  = common.ErrUnsupportedInput
	ErrUnreadableInput   = common.ErrUnreadableInput
	ErrAPICall           = common.ErrAPICall
	ErrCostLimitExceeded = common.ErrCostLimitExceeded
	ErrResponseParse     = common.ErrResponseParse
)

// Kind codes recorded in Result.ErrorKind.
const (
	KindUnsupportedInput  = common.CodeUnsupportedInput
	KindUnreadableInput   = common.CodeUnreadableInput
	KindAPICall           = common.CodeAPICall
	KindCostLimitExceeded = common.CodeCostLimitExceeded
	KindResponseParse     = common.CodeResponseParse
)

// Built-in schemas.
var (
	InvoiceSchema = schema.Invoice
	ReceiptSchema = schema.Receipt
)

// Field types for custom schemas.
const (
	String  = schema.String
	Number  = schema.Number
	Integer = schema.Integer
	Boolean = schema.Boolean
	Array   = schema.Array
	Object  = schema.Object
)

// Harvester options.
var (
	WithModel         = harvest.WithModel
	WithAPIKey        = harvest.WithAPIKey
	WithBaseURL       = harvest.WithBaseURL
	WithTimeout       = harvest.WithTimeout
	WithHTTPClient    = harvest.WithHTTPClient
	WithMaxTokens     = harvest.WithMaxTokens
	WithTemperature   = harvest.WithTemperature
	WithMaxInputChars = harvest.WithMaxInputChars
	WithTracker       = harvest.WithTracker
	WithLimits        = harvest.WithLimits
	WithSchema        = harvest.WithSchema
	WithValidation    = harvest.WithValidation
	WithRedaction     = harvest.WithRedaction
	WithStore         = harvest.WithStore
	WithLogger        = harvest.WithLogger
)

// Per-call options.
var (
	ForSchema      = harvest.ForSchema
	WithDocType    = harvest.WithDocType
	WithDocumentID = harvest.WithDocumentID
)

// New builds a Harvester. Unknown models and missing provider keys fail here.
func New(opts ...Option) (*Harvester, error) {
	return harvest.New(opts...)
}

// NewSchema declares a custom output schema. The name decides the document type:
// "ContractData" becomes "contract".
func NewSchema(name string, fields ...Field) Schema {
	return schema.New(name, fields...)
}

// NewTracker returns a ledger that can be shared between harvesters with WithTracker.
func NewTracker(limits Limits) *Tracker {
	return cost.NewTracker(cost.WithLimits(limits))
}

// Harvest is the one-shot form: build a Harvester from opts and harvest src with it.
// The Result is never nil; on failure it carries the error message and kind.
func Harvest(ctx context.Context, src any, filename string, opts ...Option) (*Result, error) {
	h, err := harvest.New(opts...)
	if err != nil {
		return &Result{
			Data:      map[string]any{},
			Error:     err.Error(),
			ErrorKind: common.KindOf(err),
		}, err
	}
	return h.Harvest(ctx, src, filename)
}

// KindOf returns the kind code of err, or "" for nil.
func KindOf(err error) string {
	return common.KindOf(err)
}
