// Package parser classifies raw API responses into pages of records.
//
// Classification is pure: no logging, no retries. Callers decide what each
// outcome means for the crawl.
package parser

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/junhkang/lofin-collector/models"
)

// DefaultPayloadKey is the top-level JSON key wrapping the payload list.
const DefaultPayloadKey = "QWGJK"

// Kind enumerates classifier outcomes for one response body.
type Kind int

const (
	// EmptyText means the trimmed body is "{}" or shorter than 5 bytes.
	EmptyText Kind = iota
	// EmptyStructure means the JSON decoded but carries no rows.
	EmptyStructure
	// ParseError means JSON decoding failed.
	ParseError
	// Valid means at least one populated row list was found.
	Valid
	// Malformed means the payload key is absent from a non-empty object.
	Malformed
)

func (k Kind) String() string {
	switch k {
	case EmptyText:
		return "empty_text"
	case EmptyStructure:
		return "empty_structure"
	case ParseError:
		return "parse_error"
	case Valid:
		return "valid"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Classification is the result of inspecting one raw page body.
type Classification struct {
	Kind Kind
	Rows []models.Record
	// TotalCount carries list_total_count from the page-1 head metadata.
	// Nil on later pages and whenever the server omits it.
	TotalCount *int
}

// Classify inspects a raw response body. The page ordinal matters only for
// TotalCount extraction: the server reports the total in head metadata on
// page 1.
func Classify(body []byte, payloadKey string, page int) Classification {
	if payloadKey == "" {
		payloadKey = DefaultPayloadKey
	}

	trimmed := bytes.TrimSpace(body)
	if string(trimmed) == "{}" || len(trimmed) < 5 {
		return Classification{Kind: EmptyText}
	}

	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return Classification{Kind: ParseError}
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		if isFalsy(decoded) {
			return Classification{Kind: EmptyStructure}
		}
		return Classification{Kind: Malformed}
	}
	if len(obj) == 0 {
		return Classification{Kind: EmptyStructure}
	}

	payload, ok := obj[payloadKey]
	if !ok {
		return Classification{Kind: Malformed}
	}
	elements, ok := payload.([]any)
	if !ok || len(elements) == 0 {
		return Classification{Kind: EmptyStructure}
	}

	var rows []models.Record
	for _, element := range elements {
		item, ok := element.(map[string]any)
		if !ok {
			continue
		}
		rowList, ok := item["row"].([]any)
		if !ok {
			continue
		}
		for _, raw := range rowList {
			if row, ok := raw.(map[string]any); ok {
				rows = append(rows, models.Record(row))
			}
		}
	}
	if len(rows) == 0 {
		return Classification{Kind: EmptyStructure}
	}

	cls := Classification{Kind: Valid, Rows: rows}
	if page == 1 {
		cls.TotalCount = totalCount(elements)
	}
	return cls
}

// totalCount scans the first payload element's head metadata for
// list_total_count.
func totalCount(elements []any) *int {
	first, ok := elements[0].(map[string]any)
	if !ok {
		return nil
	}
	head, ok := first["head"].([]any)
	if !ok {
		return nil
	}
	for _, raw := range head {
		meta, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		value, ok := meta["list_total_count"]
		if !ok {
			continue
		}
		if n, ok := asInt(value); ok {
			return &n
		}
	}
	return nil
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func isFalsy(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case []any:
		return len(v) == 0
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	default:
		return false
	}
}
