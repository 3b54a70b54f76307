package emv

import (
	"fmt"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// DOLEntry is one (tag, length) pair of a Data Object List.
type DOLEntry struct {
	Tag    tlv.Tag
	Length int
}

// DOL is a Data Object List such as the PDOL (9F38): the terminal data the
// card wants, described by tag and length only.
type DOL []DOLEntry

// ParseDOL reads consecutive tags, each followed by a one byte length.
func ParseDOL(b []byte) (DOL, error) {
	var dol DOL
	for off := 0; off < len(b); {
		tag, n, err := tlv.ReadTag(b[off:])
		if err != nil {
			return nil, fmt.Errorf("dol entry at offset %d: %w", off, err)
		}
		off += n
		if off >= len(b) {
			return nil, fmt.Errorf("dol entry %s has no length: %w", tag, tlv.ErrPrematureEnd)
		}
		dol = append(dol, DOLEntry{Tag: tag, Length: int(b[off])})
		off++
	}
	return dol, nil
}

// TotalLength is the size of the data the card expects for this list.
func (d DOL) TotalLength() int {
	total := 0
	for _, e := range d {
		total += e.Length
	}
	return total
}

func (d DOL) String() string {
	entries := make([]string, len(d))
	for i, e := range d {
		entries[i] = fmt.Sprintf("%s[%d]", e.Tag, e.Length)
	}
	return strings.Join(entries, " ")
}
