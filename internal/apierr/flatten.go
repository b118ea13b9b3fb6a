package apierr

import (
	"bytes"
	"encoding/json"
	"io"
)

// flattenErrors returns the values of an "errors" member flattened one
// level. Objects keep the key order of the document, which a map would lose.
// ok is false when raw is absent, null, or not an object or array.
func flattenErrors(raw json.RawMessage) (msgs []string, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '{' && raw[0] != '[') {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	open, err := dec.Token()
	if err != nil {
		return nil, false
	}

	msgs = []string{}
	isObject := open == json.Delim('{')
	for dec.More() {
		if isObject {
			if _, err := dec.Token(); err != nil {
				return nil, false
			}
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		msgs = appendFlat(msgs, value)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, false
	}
	return msgs, true
}

func appendFlat(dst []string, value json.RawMessage) []string {
	value = bytes.TrimSpace(value)
	if len(value) == 0 || value[0] != '[' {
		return append(dst, display(value))
	}
	var items []json.RawMessage
	if err := json.Unmarshal(value, &items); err != nil {
		return append(dst, display(value))
	}
	for _, item := range items {
		dst = append(dst, display(item))
	}
	return dst
}

func display(value json.RawMessage) string {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return string(value)
	}
	return buf.String()
}
