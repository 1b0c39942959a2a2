package harness

import (
	"regexp"
	"strings"
)

// Captured stream text often carries one or more levels of JSON escaping:
// a tool result is a JSON string embedding more JSON, so quotes arrive as
// \" sequences. decodeEscaped unwraps one level so field extraction can work
// on plain "key":"value" text.
var escapeReplacer = strings.NewReplacer(`\"`, `"`, `\\`, `\`)

func decodeEscaped(s string) string {
	return escapeReplacer.Replace(s)
}

// fieldValues returns every value of the string field key found in s, after
// unescaping. The order matches the order of appearance.
func fieldValues(s, key string) []string {
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)

	decoded := decodeEscaped(s)
	matches := re.FindAllStringSubmatch(decoded, -1)
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		values = append(values, decodeEscaped(m[1]))
	}
	return values
}
