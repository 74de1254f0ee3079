package parser

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var (
	reFence         = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	reTrailingComma = regexp.MustCompile(`,\s*([}\]])`)
	rePyLiteral     = regexp.MustCompile(`\b(True|False|None)\b`)
)

// stripFences returns the content of the first fenced block, or s unchanged.
func stripFences(s string) string {
	if m := reFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	// an unterminated fence still leaves the opening marker behind
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			return strings.TrimSpace(rest[nl+1:])
		}
	}
	return s
}

// balancedObjects yields every balanced {...} span in s, in order of their
// opening brace. Quotes of either kind are respected.
func balancedObjects(s string) []string {
	var out []string
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > 0 {
			out = append(out, s[start:end+1])
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return out
}

func matchBrace(s string, start int) int {
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// repair fixes the defects models commonly emit: trailing commas,
// single-quoted strings and Python literals.
func repair(s string) string {
	s = requote(s)
	s = reTrailingComma.ReplaceAllString(s, "$1")
	return replaceOutsideStrings(s, rePyLiteral, map[string]string{"True": "true", "False": "false", "None": "null"})
}

// requote converts single-quoted strings to double-quoted JSON strings.
func requote(s string) string {
	var b strings.Builder
	inDouble, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inDouble {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inDouble = false
			}
			continue
		}
		switch c {
		case '"':
			inDouble = true
			b.WriteByte(c)
		case '\'':
			j := i + 1
			var lit strings.Builder
			for ; j < len(s) && s[j] != '\''; j++ {
				if s[j] == '\\' && j+1 < len(s) {
					j++
				}
				lit.WriteByte(s[j])
			}
			if j >= len(s) {
				// unterminated: leave the rest untouched
				b.WriteString(s[i:])
				return b.String()
			}
			q, _ := json.Marshal(lit.String())
			b.Write(q)
			i = j
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func replaceOutsideStrings(s string, re *regexp.Regexp, repl map[string]string) string {
	var b strings.Builder
	inDouble, escaped := false, false
	seg := 0
	flush := func(end int) {
		b.WriteString(re.ReplaceAllStringFunc(s[seg:end], func(m string) string { return repl[m] }))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inDouble {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inDouble = false
				b.WriteString(s[seg : i+1])
				seg = i + 1
			}
			continue
		}
		if c == '"' {
			flush(i)
			seg = i
			inDouble = true
		}
	}
	if inDouble {
		b.WriteString(s[seg:])
	} else {
		flush(len(s))
	}
	return b.String()
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &DecodeError{Reason: "not a JSON object"}
	}
	return m, nil
}

// unwrapEnvelope returns the receipt object inside a tool-call style
// envelope, or m itself when it already looks like a receipt.
func unwrapEnvelope(m map[string]any) (map[string]any, error) {
	for depth := 0; depth < 4; depth++ {
		if _, ok := m["store_name"]; ok {
			return m, nil
		}
		if _, ok := m["items"]; ok {
			return m, nil
		}
		var inner any
		switch {
		case m["arguments"] != nil:
			inner = m["arguments"]
		case m["parameters"] != nil:
			inner = m["parameters"]
		case m["function"] != nil:
			inner = m["function"]
		case m["tool_calls"] != nil:
			calls, _ := m["tool_calls"].([]any)
			if len(calls) == 0 {
				return m, nil
			}
			inner = calls[0]
		default:
			return m, nil
		}
		switch v := inner.(type) {
		case map[string]any:
			m = v
		case string:
			next, err := decodeLenient(v)
			if err != nil {
				return nil, err
			}
			m = next
		default:
			return m, nil
		}
	}
	return m, nil
}

// decodeLenient decodes s directly, then after mechanical repair.
func decodeLenient(s string) (map[string]any, error) {
	m, err := decodeObject(s)
	if err == nil {
		return m, nil
	}
	if m2, err2 := decodeObject(repair(s)); err2 == nil {
		return m2, nil
	}
	return nil, err
}
