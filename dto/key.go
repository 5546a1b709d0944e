// Package dto holds the wire data model shared by every layer of the
// client: keys, transaction metadata, status codes, collection/partition
// maps, and the request/response shapes of the verbs in the wire protocol.
package dto

import (
	"bytes"
	"fmt"
)

// Key is a comparable, opaque byte sequence. It is never interpreted by
// the client beyond lexicographic ordering for partition-map routing.
type Key []byte

// String renders the key as a human-readable string, escaping any byte
// outside the printable ASCII range. Used only for logging; never for
// wire encoding or comparison.
func (k Key) String() string {
	var buf bytes.Buffer
	for _, b := range k {
		if b >= 32 && b < 127 && b != '\\' {
			buf.WriteByte(b)
			continue
		}
		if b == '\\' {
			buf.WriteString(`\\`)
			continue
		}
		fmt.Fprintf(&buf, `\x%02x`, b)
	}
	return buf.String()
}

// Less reports whether k sorts before other, used to keep partition-map
// assignments ordered by range start.
func (k Key) Less(other Key) bool {
	return bytes.Compare(k, other) < 0
}

// Compare returns -1, 0 or 1 as k is less than, equal to, or greater than other.
func (k Key) Compare(other Key) int {
	return bytes.Compare(k, other)
}
