package events

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
)

// MarketWire is one market from the Gamma API. The list-valued fields
// (outcomes, prices, token ids) arrive in three encodings depending on
// endpoint vintage: a JSON array, a JSON array encoded as a string, or a
// comma-separated string. They are kept raw here and parsed on demand.
type MarketWire struct {
	Question      string          `json:"question"`
	Slug          string          `json:"slug"`
	ConditionID   string          `json:"conditionId"`
	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	ClobTokenIDs  json.RawMessage `json:"clobTokenIds"`
	Volume        string          `json:"volume"`
	VolumeNum     *float64        `json:"volumeNum"`
	UpdatedAt     string          `json:"updatedAt"`
}

type eventWire struct {
	Markets []MarketWire `json:"markets"`
}

type historyResponse struct {
	History []struct {
		T int64   `json:"t"`
		P float64 `json:"p"`
	} `json:"history"`
}

// Normalize converts a Gamma market into the canonical Quote:
//
//   - value = maximum across outcome prices (probability of the favored
//     outcome); equal maxima resolve to the lowest index
//   - symbol = question, falling back to slug, then condition id
//   - volume = total traded USD
//   - metadata carries slug, top_outcome, top_outcome_index, condition_id
//     and clob_token_ids
//
// Required fields that are absent or mis-shaped surface as ValidationError;
// nothing is defaulted except the documented symbol fallback chain.
func Normalize(w MarketWire) (model.Quote, error) {
	prices, err := parseFloatList(w.OutcomePrices)
	if err != nil {
		return model.Quote{}, &provider.ValidationError{
			Source: model.SourceEvents,
			Field:  "outcomePrices",
			Reason: err.Error(),
		}
	}
	if len(prices) == 0 {
		return model.Quote{}, &provider.ValidationError{
			Source: model.SourceEvents,
			Field:  "outcomePrices",
			Reason: "missing or empty",
		}
	}

	top := 0
	for i, p := range prices {
		if p > prices[top] {
			top = i
		}
	}
	value := prices[top]
	if value < 0 || value > 1 {
		return model.Quote{}, &provider.ValidationError{
			Source: model.SourceEvents,
			Field:  "outcomePrices",
			Reason: "probability outside [0,1]: " + strconv.FormatFloat(value, 'g', -1, 64),
		}
	}

	symbol := w.Question
	if symbol == "" {
		symbol = w.Slug
	}
	if symbol == "" {
		symbol = w.ConditionID
	}
	if symbol == "" {
		return model.Quote{}, &provider.ValidationError{
			Source: model.SourceEvents,
			Field:  "question",
			Reason: "no question, slug, or conditionId to identify the market",
		}
	}

	var volume *float64
	switch {
	case w.VolumeNum != nil:
		volume = w.VolumeNum
	case w.Volume != "":
		v, err := strconv.ParseFloat(w.Volume, 64)
		if err != nil {
			return model.Quote{}, &provider.ValidationError{
				Source: model.SourceEvents,
				Field:  "volume",
				Reason: "not numeric: " + w.Volume,
			}
		}
		volume = &v
	}

	ts := time.Now().UTC()
	if w.UpdatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, w.UpdatedAt); err == nil {
			ts = parsed.UTC()
		}
	}

	outcomes := parseStringList(w.Outcomes)
	topOutcome := ""
	if top < len(outcomes) {
		topOutcome = outcomes[top]
	}

	return model.Quote{
		Source:    model.SourceEvents,
		Symbol:    symbol,
		Value:     value,
		Volume:    volume,
		Timestamp: ts,
		Meta: model.EventMetadata{
			Slug:            w.Slug,
			ConditionID:     w.ConditionID,
			TopOutcome:      topOutcome,
			TopOutcomeIndex: top,
			ClobTokenIDs:    parseStringList(w.ClobTokenIDs),
		},
	}, nil
}

// parseStringList decodes a raw list field in any of its three encodings.
// Invalid input yields nil; string-list fields are never required alone.
func parseStringList(raw json.RawMessage) []string {
	items := rawToList(raw)
	if items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case json.Number:
			out = append(out, v.String())
		}
	}
	return out
}

// parseFloatList decodes a raw list field whose elements must be numbers or
// numeric strings.
func parseFloatList(raw json.RawMessage) ([]float64, error) {
	items := rawToList(raw)
	if items == nil {
		return nil, nil
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		default:
			return nil, strconv.ErrSyntax
		}
	}
	return out, nil
}

// rawToList normalizes the three wire encodings to a []any of strings and
// json.Numbers.
func rawToList(raw json.RawMessage) []any {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	if trimmed[0] == '"' {
		// A string: either a JSON array in disguise or comma-separated.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "[") {
			return decodeArray([]byte(s))
		}
		var out []any
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}

	if trimmed[0] == '[' {
		return decodeArray(raw)
	}
	return nil
}

func decodeArray(data []byte) []any {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var out []any
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}
