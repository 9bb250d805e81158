package segment

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// canonicalize makes hashing stable across visually identical inputs:
// invalid UTF-8 is dropped, composed form is normalized (NFC), zero-width
// format characters are stripped, and whitespace around the ';' and ','
// separators is removed. Value case is preserved, it is meaningful
func canonicalize(s string) string {
	s = strings.ToValidUTF8(s, "")

	tr := chainPool.Get().(transform.Transformer)
	ns, _, err := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)
	if err == nil {
		s = ns
	}

	parts := strings.Split(s, ";")
	for i, p := range parts {
		ors := strings.Split(p, ",")
		for j := range ors {
			ors[j] = strings.TrimSpace(ors[j])
		}
		parts[i] = strings.Join(ors, ",")
	}
	return strings.Join(parts, ";")
}

// pool of fresh transformer chains, transform state is not shareable
var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFC,
			runes.Remove(runes.In(unicode.Cf)), // ZWJ ZWNJ FEFF and friends
		)
	},
}
