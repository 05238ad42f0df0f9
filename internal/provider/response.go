package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/catalogai/doc-analyzer/internal/fault"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ParseJSONResponse recovers a JSON object from a model's free-text reply.
// Models are asked for bare JSON but routinely wrap it in prose or Markdown
// fences, so recovery tries, in order:
//
//  1. parsing the whole body,
//  2. parsing the first balanced {...} span,
//  3. stripping code-fence markers and retrying both.
//
// Anything less than a full parse is a JSON_PARSE_ERROR; partially-parsed or
// best-guess data is never returned.
func ParseJSONResponse(body string) (map[string]any, error) {
	if m, ok := tryParse(body); ok {
		return m, nil
	}
	if span := firstObjectSpan(body); span != "" {
		if m, ok := tryParse(span); ok {
			return m, nil
		}
	}
	stripped := stripFences(body)
	if stripped != body {
		if m, ok := tryParse(stripped); ok {
			return m, nil
		}
		if span := firstObjectSpan(stripped); span != "" {
			if m, ok := tryParse(span); ok {
				return m, nil
			}
		}
	}
	return nil, fault.New(fault.KindJSONParse, "response contains no parseable JSON object")
}

func tryParse(s string) (map[string]any, bool) {
	var m map[string]any
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(s)))
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// firstObjectSpan returns the first brace-balanced {...} substring, tracking
// JSON string literals so braces inside values don't unbalance the scan.
func firstObjectSpan(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// stripFences removes Markdown code-fence lines (``` and ```json variants).
func stripFences(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// ValidateMetadata checks a parsed metadata document against a caller-supplied
// JSON schema (draft 2020-12 subset). Callers with no schema skip this.
func ValidateMetadata(schemaMap map[string]any, doc map[string]any) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("metadata.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("metadata.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	// Round-trip so numeric types match what the validator expects.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("metadata does not match schema: %w", err)
	}
	return nil
}
