package analysis

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"sigmatch/internal/sig"
)

// MinStringLength is the shortest run of printable bytes recorded as a
// string. The signature generator applies its own, stricter length filter
// on top of this.
const MinStringLength = 5

// stringRuns scans a read-only data blob for NUL-terminated runs of
// printable bytes at least min long. base is the virtual address of
// data[0]. Runs broken by a non-printable byte other than NUL are
// discarded; real C strings end in NUL.
func stringRuns(data []byte, base uint64, min int) []sig.StringRecord {
	var out []sig.StringRecord
	start := -1

	for i, c := range data {
		if printableByte(c) {
			if start < 0 {
				start = i
			}
			continue
		}
		if c == 0 && start >= 0 && i-start >= min {
			out = append(out, sig.StringRecord{
				Addr:  base + uint64(start),
				Value: string(data[start:i]),
			})
		}
		start = -1
	}
	return out
}

func printableByte(c byte) bool {
	return (c >= 0x20 && c < 0x7f) || c == '\t' || c == '\n' || c == '\r'
}

// EscapeUnprintable returns a string where printable Unicode runes are
// preserved. Control and unprintable runes are escaped as \uXXXX, invalid
// UTF-8 as \xXX. Used when logging string values recovered from binaries.
func EscapeUnprintable(b []byte) string {
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteString(fmt.Sprintf("\\x%02X", b[0]))
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteString(fmt.Sprintf("\\u%04X", r))
		}
		b = b[size:]
	}
	return sb.String()
}
