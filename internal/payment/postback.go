package payment

import (
	"bytes"
	"encoding/json"
	"strings"
)

type Format string

const (
	FormatJSON         Format = "json"
	FormatDelimited    Format = "delimited"
	FormatUnrecognized Format = "unrecognized"
)

// Fields is the single field-name space every postback encoding collapses into.
type Fields map[string]string

// Lookup returns the value of the first key present, trimmed.
func (f Fields) Lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func (f Fields) First(keys ...string) string {
	v, _ := f.Lookup(keys...)
	return v
}

// ParseResult is the tagged outcome of ParsePostback. Fields is nil when
// Format is FormatUnrecognized.
type ParseResult struct {
	Format Format
	Fields Fields
}

func (r ParseResult) Recognized() bool {
	return r.Format != FormatUnrecognized
}

// ParsePostback accepts a JSON object (nested objects flatten to dot-joined
// keys) or a flat key=value list separated by ';', or by ',' when the body
// has no ';'. Anything else is FormatUnrecognized.
func ParsePostback(body []byte) ParseResult {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ParseResult{Format: FormatUnrecognized}
	}

	if fields, ok := parseJSON(trimmed); ok {
		return ParseResult{Format: FormatJSON, Fields: fields}
	}

	if fields, ok := parseDelimited(string(trimmed)); ok {
		return ParseResult{Format: FormatDelimited, Fields: fields}
	}

	return ParseResult{Format: FormatUnrecognized}
}

func parseJSON(body []byte) (Fields, bool) {
	if body[0] != '{' {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, false
	}
	// trailing garbage after the object means this is not a JSON body
	if dec.More() {
		return nil, false
	}

	fields := Fields{}
	flatten("", doc, fields)
	return fields, true
}

func flatten(prefix string, node map[string]interface{}, out Fields) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case string:
			out[key] = val
		case json.Number:
			out[key] = val.String()
		case bool:
			if val {
				out[key] = "true"
			} else {
				out[key] = "false"
			}
		case nil:
			out[key] = ""
		default:
			encoded, err := json.Marshal(val)
			if err == nil {
				out[key] = string(encoded)
			}
		}
	}
}

func parseDelimited(body string) (Fields, bool) {
	sep := ","
	if strings.Contains(body, ";") {
		sep = ";"
	}

	fields := Fields{}
	for _, part := range strings.Split(body, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}

	return fields, len(fields) > 0
}
