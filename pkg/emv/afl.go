package emv

import "fmt"

// AFLEntry is one 4-byte group of the Application File Locator (tag 94):
// the SFI in bits 8-4 of byte 1, then first record, last record and the
// number of records taking part in offline data authentication.
type AFLEntry struct {
	SFI                byte
	FirstRecord        byte
	LastRecord         byte
	OfflineAuthRecords byte
}

// ParseAFL splits b into entries. An empty AFL yields no entries.
func ParseAFL(b []byte) ([]AFLEntry, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("length %d is not a multiple of 4: %w", len(b), ErrMalformedAFL)
	}

	entries := make([]AFLEntry, 0, len(b)/4)
	for i := 0; i < len(b); i += 4 {
		e := AFLEntry{
			SFI:                b[i] >> 3,
			FirstRecord:        b[i+1],
			LastRecord:         b[i+2],
			OfflineAuthRecords: b[i+3],
		}
		if e.FirstRecord == 0 {
			return nil, fmt.Errorf("entry %d: first record is 0: %w", i/4+1, ErrMalformedAFL)
		}
		if e.LastRecord < e.FirstRecord {
			return nil, fmt.Errorf("entry %d: last record %d before first %d: %w", i/4+1, e.LastRecord, e.FirstRecord, ErrMalformedAFL)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Records returns the record numbers covered by the entry, in order.
func (e AFLEntry) Records() []byte {
	out := make([]byte, 0, int(e.LastRecord)-int(e.FirstRecord)+1)
	for n := int(e.FirstRecord); n <= int(e.LastRecord); n++ {
		out = append(out, byte(n))
	}
	return out
}

func (e AFLEntry) String() string {
	return fmt.Sprintf("SFI %d: records %d-%d (%d for offline auth)", e.SFI, e.FirstRecord, e.LastRecord, e.OfflineAuthRecords)
}
