package transformer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	digestFieldSep = "\x1f"
	digestRowSep   = "\x1e"
)

// Digest is a SHA-256 over the column names and every cell in row order.
// Missing cells hash differently from empty strings; source line numbers
// are ignored. Two exports with the same digest seed identical catalogs.
func Digest(t *Table) string {
	h := sha256.New()
	var b strings.Builder

	b.WriteString(strings.Join(t.Columns, digestFieldSep))
	b.WriteString(digestRowSep)
	_, _ = h.Write([]byte(b.String()))

	for _, r := range t.Rows {
		b.Reset()
		for i := range t.Columns {
			if i > 0 {
				b.WriteString(digestFieldSep)
			}
			s, ok := t.Text(r, i)
			if !ok {
				b.WriteByte(0)
				continue
			}
			b.WriteString(s)
		}
		b.WriteString(digestRowSep)
		_, _ = h.Write([]byte(b.String()))
	}
	return hex.EncodeToString(h.Sum(nil))
}
