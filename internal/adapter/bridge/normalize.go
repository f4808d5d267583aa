package bridge

import (
	"encoding/json"

	"agentnet/internal/domain"
)

// ExpectedField declares one field the caller of a capability relies on. When
// a server response omits the field, normalization fills in Default so
// downstream code never branches on presence.
type ExpectedField struct {
	Name    string
	Default any
}

// Normalize maps a raw capability response onto the canonical field set.
// Capability servers answer in several envelope shapes; Normalize unwraps
// them in order:
//
//  1. a JSON object with a "result" key: the envelope is discarded and the
//     inner value normalized (an inner object becomes the field set, an
//     inner string the "text" field);
//  2. a JSON object with a "content" array: the first text block is
//     extracted and normalized recursively, covering servers that return
//     structured JSON embedded in a content block;
//  3. any other JSON object: taken as the field set directly;
//  4. a bare JSON string, or a payload that is not JSON at all: treated as
//     plain text under the "text" field.
//
// Payloads that parse to JSON arrays, numbers, booleans or null match no
// known shape and fail with ErrUnrecognizedShape; the raw payload travels
// with the error for diagnostics, never coerced into a fabricated result.
func Normalize(raw []byte, expected []ExpectedField) (*domain.CapabilityResult, error) {
	fields, err := unwrap(raw, 0)
	if err != nil {
		return nil, err
	}

	for _, f := range expected {
		if _, ok := fields[f.Name]; !ok {
			fields[f.Name] = f.Default
		}
	}

	return &domain.CapabilityResult{Fields: fields, Raw: json.RawMessage(raw)}, nil
}

// unwrapDepthLimit bounds recursion through nested result/content envelopes.
const unwrapDepthLimit = 4

func unwrap(raw []byte, depth int) (map[string]any, error) {
	if depth > unwrapDepthLimit {
		return nil, domain.NewPayloadError("Normalize", domain.ErrUnrecognizedShape,
			"envelope nesting too deep", raw)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		// Not JSON: plain text response.
		return map[string]any{"text": string(raw)}, nil
	}

	switch v := value.(type) {
	case string:
		return map[string]any{"text": v}, nil
	case map[string]any:
		if inner, ok := v["result"]; ok && len(v) == 1 {
			return unwrapInner(inner, raw, depth)
		}
		if blocks, ok := v["content"].([]any); ok && len(v) == 1 {
			return unwrapContent(blocks, raw, depth)
		}
		return v, nil
	default:
		// Arrays, numbers, booleans, null: no canonical field mapping exists.
		return nil, domain.NewPayloadError("Normalize", domain.ErrUnrecognizedShape,
			"top-level value is not an object or string", raw)
	}
}

// unwrapInner normalizes the value inside a result envelope.
func unwrapInner(inner any, raw []byte, depth int) (map[string]any, error) {
	switch iv := inner.(type) {
	case map[string]any:
		if data, err := json.Marshal(iv); err == nil {
			return unwrap(data, depth+1)
		}
		return iv, nil
	case string:
		return unwrapText(iv, depth)
	default:
		return nil, domain.NewPayloadError("Normalize", domain.ErrUnrecognizedShape,
			"result envelope holds neither object nor string", raw)
	}
}

// unwrapContent normalizes the first text block of a content-block envelope.
func unwrapContent(blocks []any, raw []byte, depth int) (map[string]any, error) {
	for _, blk := range blocks {
		m, ok := blk.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := m["type"].(string); t != "" && t != "text" {
			continue
		}
		if text, ok := m["text"].(string); ok {
			return unwrapText(text, depth)
		}
	}
	return nil, domain.NewPayloadError("Normalize", domain.ErrUnrecognizedShape,
		"content envelope holds no text block", raw)
}

// unwrapText normalizes text found inside an envelope: structured JSON
// objects recurse through the shape table, anything else is plain text.
func unwrapText(text string, depth int) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return unwrap([]byte(text), depth+1)
	}
	return map[string]any{"text": text}, nil
}
