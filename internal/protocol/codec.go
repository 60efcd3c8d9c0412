// Package protocol implements the dispatcher wire format: datagrams made of
// newline separated key=value lines.
package protocol

import (
	"bytes"
	"regexp"
	"slices"
	"strings"
)

// linePattern matches one key=value line. The key is everything before the
// first '=' and may not be empty.
var linePattern = regexp.MustCompile(`^([^=\n]+)=(.*)$`)

// Encode renders fields as key=value lines joined by '\n'. Keys are sorted so
// the output is deterministic; decoding does not depend on the order.
// Decode(Encode(m)) == m whenever no key is empty or holds '=' or '\n' and no
// value holds '\n'.
func Encode(fields map[string]string) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var buf bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(fields[k])
	}
	return buf.Bytes()
}

// Decode parses key=value lines. Lines that do not match are skipped, so an
// empty or garbled datagram yields an empty map; checking for required keys
// is up to the caller. For repeated keys the last line wins.
func Decode(data []byte) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		fields[m[1]] = m[2]
	}
	return fields
}
