package engine

import (
	"fmt"
	"strings"
)

// Command is a parsed TS3 command: an optional name (absent for
// notification bodies and continuations) plus one parameter map per
// "|"-separated item, in the order they appeared on the wire (§4.1
// "Command sublanguage").
type Command struct {
	Name  string
	Items []map[string]string
}

// Escape replaces the characters TS3 forbids unescaped in a parameter value
// with their backslash sequences. Property: Unescape(Escape(s)) == s for
// any s, including adversarial combinations like "a\\sb|c".
func Escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString("\\\\")
		case ' ':
			b.WriteString("\\s")
		case '|':
			b.WriteString("\\p")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '/':
			b.WriteString("\\/")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Unescape is Escape's inverse. An unrecognized escape sequence (a
// backslash not followed by one of \spnrt/) passes the backslash through
// literally, matching the wire's tolerant behavior.
func Unescape(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '\\' || i+1 >= len(runes) {
			b.WriteRune(runes[i])
			continue
		}
		switch runes[i+1] {
		case '\\':
			b.WriteByte('\\')
		case 's':
			b.WriteByte(' ')
		case 'p':
			b.WriteByte('|')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '/':
			b.WriteByte('/')
		default:
			b.WriteRune(runes[i])
			continue
		}
		i++
	}
	return b.String()
}

// ParseCommand parses a single newline-terminated command line (the
// trailing newline, if present, should already be stripped by the caller's
// framing layer). requireName controls whether a nameless first item (no
// "=" in its first token) is rejected -- per §4.1, a command without a name
// is a continuation/notification body that callers must reject unless they
// already know the expected shape.
func ParseCommand(line string, requireName bool) (Command, error) {
	itemStrs := splitUnescaped(line, '|')

	var cmd Command
	for idx, itemStr := range itemStrs {
		tokens := splitUnescaped(itemStr, ' ')
		item := make(map[string]string)

		start := 0
		if idx == 0 && len(tokens) > 0 && !strings.Contains(tokens[0], "=") {
			if tokens[0] != "" {
				cmd.Name = Unescape(tokens[0])
				start = 1
			}
		}
		if idx == 0 && cmd.Name == "" && requireName {
			return Command{}, fmt.Errorf("engine: command has no name")
		}

		for _, tok := range tokens[start:] {
			if tok == "" {
				continue
			}
			key, val, hasVal := strings.Cut(tok, "=")
			key = Unescape(key)
			if hasVal {
				item[key] = Unescape(val)
			} else {
				item[key] = ""
			}
		}
		cmd.Items = append(cmd.Items, item)
	}
	return cmd, nil
}

// Serialize renders cmd back to wire form (without a trailing newline;
// callers append the framing newline themselves). Key order within an item
// is unspecified (map iteration), which is fine: ParseCommand(Serialize(c))
// reproduces the same set of key/value pairs per item, not byte-identical
// text.
func (c Command) Serialize() string {
	var b strings.Builder
	for idx, item := range c.Items {
		if idx > 0 {
			b.WriteByte('|')
		}
		first := true
		if idx == 0 && c.Name != "" {
			b.WriteString(Escape(c.Name))
			first = false
		}
		for k, v := range item {
			if !first {
				b.WriteByte(' ')
			}
			first = false
			b.WriteString(Escape(k))
			if v != "" {
				b.WriteByte('=')
				b.WriteString(Escape(v))
			} else {
				// Empty value still round-trips as a flag unless the
				// caller truly wants "k=" -- TS3's own wire format does
				// not distinguish the two, so we always emit the bare
				// flag form for an empty value.
			}
		}
	}
	return b.String()
}

// splitUnescaped splits s on sep, treating a backslash-prefixed sep as data
// rather than a delimiter (mirrors the wire rule that a literal sep
// character is always escaped within a value).
func splitUnescaped(s string, sep byte) []string {
	var out []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			cur.WriteByte(s[i])
			cur.WriteByte(s[i+1])
			i++
			continue
		}
		if s[i] == sep {
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(s[i])
	}
	out = append(out, cur.String())
	return out
}
