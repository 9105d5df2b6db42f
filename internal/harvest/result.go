package harvest

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SIMOUNIX/harvestor/constants"
	"github.com/SIMOUNIX/harvestor/internal/validate"
)

// DefaultConfidence is reported for a successful model extraction.
const DefaultConfidence = 0.85

// Result is the outcome of one harvest. It is not modified after Harvest returns it.
type Result struct {
	Success      bool               `json:"success"`
	Data         map[string]any     `json:"data"`
	DocumentID   string             `json:"document_id"`
	DocumentType string             `json:"document_type"`
	Model        string             `json:"model"`
	Provider     string             `json:"provider"`
	Strategy     constants.Strategy `json:"strategy"`
	Confidence   float64            `json:"confidence"`
	TotalCost    float64            `json:"total_cost"`
	InputTokens  int                `json:"input_tokens"`
	OutputTokens int                `json:"output_tokens"`
	Duration     time.Duration      `json:"duration_ns"`
	FilePath     string             `json:"file_path,omitempty"`
	FileSize     int64              `json:"file_size_bytes"`
	MediaType    string             `json:"media_type,omitempty"`
	SHA256       string             `json:"sha256,omitempty"`
	Truncated    bool               `json:"truncated"`
	Repaired     bool               `json:"repaired"`
	Redacted     int                `json:"redacted"`
	Warnings     []string           `json:"warnings,omitempty"`
	Validation   *validate.Report   `json:"validation,omitempty"`
	Error        string             `json:"error,omitempty"`
	ErrorKind    string             `json:"error_kind,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// CostBreakdown maps the strategy that produced the result to its spend.
func (r *Result) CostBreakdown() map[string]float64 {
	return map[string]float64{string(r.Strategy): r.TotalCost}
}

// Get returns a top-level extracted field.
func (r *Result) Get(field string) (any, bool) {
	v, ok := r.Data[field]
	return v, ok
}

// ToStruct renders the result as a protobuf Struct for gRPC embedders.
func (r *Result) ToStruct() (*structpb.Struct, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return structpb.NewStruct(m)
}
