package stabilize

import (
	"fmt"
	"hash/fnv"

	"github.com/karstvig/focusd/extract"
)

// Prefix limits for the fingerprint's text component. The readable
// extraction gets the longest window since it is already boilerplate
// free; the landmark and whole-body fallbacks are noisier and get
// progressively shorter ones.
const (
	readableFingerprintLen = 1000
	landmarkFingerprintLen = 500
	bodyFingerprintLen     = 300

	// fingerprintMinReadable is deliberately looser than the snippet
	// threshold: for change detection a short readable block still
	// beats the raw body.
	fingerprintMinReadable = 50
)

// Fingerprint derives a compact change-detection signature for a parsed
// page. Two samples with equal fingerprints are treated as the same
// content state. The signature combines the page metadata with a hash
// of a normalised readable-text prefix, so cosmetic DOM churn that does
// not move the visible content leaves it unchanged.
func Fingerprint(doc *extract.Document, url string) string {
	var text string
	limit := bodyFingerprintLen
	if r := doc.Readable(fingerprintMinReadable); r != nil {
		text = r.Text
		limit = readableFingerprintLen
	} else {
		var source string
		text, source = doc.FallbackText()
		if source == "main" || source == "article" {
			limit = landmarkFingerprintLen
		}
	}
	text = extract.Truncate(extract.NormaliseForHash(text), limit)

	h := fnv.New32a()
	h.Write([]byte(text))
	return fmt.Sprintf("%s::%s::%s::%08x", doc.Title, doc.MetaDescription, url, h.Sum32())
}
