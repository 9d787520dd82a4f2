package similarity

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// RE2's \b only knows ASCII, so word starts are matched with an explicit
// non-letter prefix that the replacement puts back.
const wordStart = `(^|[^\p{L}\p{N}])`

type replacement struct {
	re   *regexp.Regexp
	with string
}

// descriptionNoise strips the parts of a payment purpose that vary between
// otherwise identical operations: dates, document numbers, account
// references, sums. VAT phrasing is unified.
var descriptionNoise = []replacement{
	{regexp.MustCompile(`\d{1,2}[./-]\d{1,2}[./-]\d{2,4}`), ""},
	{regexp.MustCompile(wordStart + `(?:январ|феврал|март|апрел|ма[йя]|июн|июл|август|сентябр|октябр|ноябр|декабр)\p{L}*`), "${1}"},
	{regexp.MustCompile(`№\s*\d+`), ""},
	{regexp.MustCompile(wordStart + `(?:н[ао]мер|договор)\s*\d+`), "${1}"},
	{regexp.MustCompile(wordStart + `по\s+сч[её]т(?:у|ам|а|ов)?\s+[^,\s\p{Cyrillic}]+(?:\s*,\s*[^,\s\p{Cyrillic}]+)*`), "${1}"},
	{regexp.MustCompile(`[\p{L}\d]+-[\p{L}\d-]+`), ""},
	{regexp.MustCompile(wordStart + `\p{L}{1,3}\d{4,}`), "${1}"},
	{regexp.MustCompile(`\d+[\s.,]\d+\s*(?:руб\p{L}*|₽|р\.?)?`), ""},
	{regexp.MustCompile(wordStart + `ндс\s+(?:не\s+облагается|\d+\s*%)`), "${1}ндс"},
	{regexp.MustCompile(wordStart + `в\s+(?:том|т\.)\s*ч(?:исле|\.)?\s+ндс`), "${1}ндс"},
	{regexp.MustCompile(`\d{2,}`), ""},
	{regexp.MustCompile(wordStart + `(?:по\s+)?сч[её]т(?:у|ам|а|ов)?(?:[^\p{L}]|$)`), "${1} "},
	{regexp.MustCompile(`\s+от(?:\s|,|$)`), " "},
	{regexp.MustCompile(`[^\p{L}\p{N}\s]+`), " "},
	{regexp.MustCompile(`\s+`), " "},
}

// CleanDescription lower-cases a payment purpose and removes its variable
// parts so that two payments for the same thing compare equal.
func CleanDescription(text string) string {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	for _, r := range descriptionNoise {
		cleaned = r.re.ReplaceAllString(cleaned, r.with)
	}
	return strings.TrimSpace(cleaned)
}

// significantTokens returns words longer than three letters.
func significantTokens(cleaned string) []string {
	var out []string
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

// tokenOverlap is the share of words in a that have a counterpart in b,
// where either word containing the other counts, over the larger word count.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	for _, w1 := range a {
		for _, w2 := range b {
			if strings.Contains(w1, w2) || strings.Contains(w2, w1) {
				common++
				break
			}
		}
	}
	return float64(common) / float64(max(len(a), len(b)))
}

var unitCost = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// editSimilarity is 1 minus the rune-level edit distance over the longer
// length.
func editSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 0
	}
	d := levenshtein.DistanceForStrings(ra, rb, unitCost)
	return 1 - float64(d)/float64(longest)
}

// DescriptionRatio scores two payment purposes in [0,1] as the larger of
// token overlap and normalized edit similarity on their cleaned forms.
// An empty side scores 0.
func DescriptionRatio(a, b string) float64 {
	return cleanedRatio(CleanDescription(a), CleanDescription(b))
}

func cleanedRatio(ca, cb string) float64 {
	if ca == "" || cb == "" {
		return 0
	}
	if ca == cb {
		return 1
	}
	r := max(tokenOverlap(significantTokens(ca), significantTokens(cb)), editSimilarity(ca, cb))
	return min(r, 1)
}
