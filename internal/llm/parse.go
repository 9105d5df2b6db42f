package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/SIMOUNIX/harvestor/internal/common"
)

var errNoObject = errors.New("response does not contain a JSON object")

// ParseJSONObject pulls the JSON object out of a model reply. Models often wrap it in prose
// or code fences, so the span from the first '{' to the last '}' is tried first; malformed
// JSON is run through jsonrepair. repaired reports whether the repair path was needed.
func ParseJSONObject(content string) (data map[string]any, repaired bool, err error) {
	candidate := strings.TrimSpace(content)
	if candidate == "" {
		return nil, false, common.ResponseParseError("empty response from model", errNoObject)
	}
	if start, end := strings.Index(candidate, "{"), strings.LastIndex(candidate, "}"); start >= 0 && end > start {
		candidate = candidate[start : end+1]
	}

	if err := decodeObject(candidate, &data); err == nil {
		return data, false, nil
	} else if errors.Is(err, errNoObject) {
		return nil, false, common.ResponseParseError("model did not return a JSON object", err)
	}

	fixed, repairErr := jsonrepair.JSONRepair(candidate)
	if repairErr != nil {
		return nil, false, common.ResponseParseError("invalid JSON in model response", repairErr)
	}
	if err := decodeObject(fixed, &data); err != nil {
		return nil, true, common.ResponseParseError("invalid JSON in model response after repair", err)
	}
	return data, true, nil
}

func decodeObject(s string, out *map[string]any) error {
	var v any
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("decode: trailing data after object")
	}
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%w (got %T)", errNoObject, v)
	}
	*out = m
	return nil
}
