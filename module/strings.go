package module

import (
	"sort"
	"unicode/utf8"

	"github.com/dylibso/modsurfer/wasm"
)

// minStringLen is the shortest data-section run worth keeping. Shorter
// runs are overwhelmingly encoding noise.
const minStringLen = 4

// extractStrings collects printable UTF-8 runs from the module's data
// segments (panic messages, format strings, embedded paths). The scan
// is best-effort; results are deduplicated and sorted.
func extractStrings(raw *wasm.Module) []string {
	seen := make(map[string]bool)
	for _, seg := range raw.Data {
		scanSegment(seg.Init, seen)
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func scanSegment(data []byte, seen map[string]bool) {
	start := -1
	runes := 0
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r != utf8.RuneError && printable(r) {
			if start < 0 {
				start = i
				runes = 0
			}
			runes++
			i += size
			continue
		}
		if start >= 0 && runes >= minStringLen {
			seen[string(data[start:i])] = true
		}
		start = -1
		i++
	}
	if start >= 0 && runes >= minStringLen {
		seen[string(data[start:])] = true
	}
}

func printable(r rune) bool {
	if r == '\t' {
		return true
	}
	return r >= 0x20 && r != 0x7F
}
