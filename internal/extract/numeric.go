package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numberRe = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)$`)
	tripleRe = regexp.MustCompile(
		`(\d+(?:\.\d+)?)\s*[-:/]\s*(\d+(?:\.\d+)?)\s*[-:/]\s*(\d+(?:\.\d+)?)`,
	)
)

// ParseFloat parses a plain decimal. Anything else, including "1.2.3", NaN
// and Inf spellings, is rejected.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !numberRe.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseNPK reads an N-P-K triple out of text. A numeric triple anywhere in
// the text wins; otherwise the text is split on "-" and each of the first
// three parts is parsed on its own. Components that are not numbers come back
// nil rather than zero.
func ParseNPK(text string) (n, p, k *float64) {
	if m := tripleRe.FindStringSubmatch(text); m != nil {
		return floatPtr(m[1]), floatPtr(m[2]), floatPtr(m[3])
	}
	parts := strings.Split(text, "-")
	if len(parts) < 3 {
		return nil, nil, nil
	}
	return floatPtr(parts[0]), floatPtr(parts[1]), floatPtr(parts[2])
}

func floatPtr(s string) *float64 {
	f, ok := ParseFloat(s)
	if !ok {
		return nil
	}
	return &f
}
