package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/cropharvest/internal/corpus"
)

// Tier orders strategies by precision. Lower tiers win.
type Tier int

// Strategy tiers, most precise first.
const (
	TierStructural Tier = iota
	TierKeyword
	TierPattern
	TierFallback
)

func (t Tier) String() string {
	switch t {
	case TierStructural:
		return "structural"
	case TierKeyword:
		return "keyword"
	case TierPattern:
		return "pattern"
	case TierFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Strategy is one way of locating a field's value in a corpus.
type Strategy interface {
	Tier() Tier
	extract(e *Engine, v corpus.View, limit int) []string
}

// Selector reads elements matched by CSS selectors, in the order listed.
type Selector struct {
	CSS []string
	// Trim is removed from every match, e.g. a " | Site Name" title suffix.
	Trim *regexp.Regexp
	// Reject drops matches containing any of these words (case-insensitive).
	Reject []string
	// Accept, when set, must return true for a match to count.
	Accept    func(string) bool
	Normalize func(string) string
}

// Tier implements Strategy.
func (Selector) Tier() Tier { return TierStructural }

func (s Selector) extract(_ *Engine, v corpus.View, _ int) []string {
	for _, css := range s.CSS {
		for _, raw := range v.Select(css) {
			text := corpus.Clean(raw)
			if s.Trim != nil {
				text = strings.TrimSpace(s.Trim.ReplaceAllString(text, ""))
			}
			if text == "" || containsAny(strings.ToLower(text), s.Reject) {
				continue
			}
			if s.Accept != nil && !s.Accept(text) {
				continue
			}
			if s.Normalize != nil {
				if text = s.Normalize(text); text == "" {
					continue
				}
			}
			return []string{text}
		}
	}
	return nil
}

// Keyword scans the page's content-area fragments for any of Words.
type Keyword struct {
	Words []string
}

// Tier implements Strategy.
func (Keyword) Tier() Tier { return TierKeyword }

func (k Keyword) extract(e *Engine, v corpus.View, limit int) []string {
	words := make([]string, 0, len(k.Words))
	for _, w := range k.Words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	var out []string
	seen := make(map[string]struct{})
	for _, frag := range e.scopedFragments(v) {
		text := corpus.Clean(frag)
		n := utf8.RuneCountInString(text)
		if n <= e.opts.MinFragmentLen || n >= e.opts.MaxFragmentLen {
			continue
		}
		lower := strings.ToLower(text)
		if !containsAny(lower, words) || e.denied(lower) {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		out = append(out, text)
		if len(out) >= limit {
			break
		}
	}
	return out
}

var sentenceEnd = regexp.MustCompile(`[.!?](?:\s+|$)`)

const (
	minSentenceLen = 20
	maxSentenceLen = 300
)

// Sentence splits the content-area text into sentences and keeps those that
// Match and carry at least one digit.
type Sentence struct {
	Match *regexp.Regexp
}

// Tier implements Strategy.
func (Sentence) Tier() Tier { return TierKeyword }

func (s Sentence) extract(e *Engine, v corpus.View, limit int) []string {
	if s.Match == nil {
		return nil
	}
	text := strings.Join(e.scopedFragments(v), " ")
	var out []string
	seen := make(map[string]struct{})
	for _, raw := range sentenceEnd.Split(text, -1) {
		sentence := corpus.Clean(raw)
		n := utf8.RuneCountInString(sentence)
		if n <= minSentenceLen || n >= maxSentenceLen {
			continue
		}
		if !strings.ContainsAny(sentence, "0123456789") || !s.Match.MatchString(sentence) {
			continue
		}
		if e.denied(strings.ToLower(sentence)) {
			continue
		}
		if _, dup := seen[sentence]; dup {
			continue
		}
		seen[sentence] = struct{}{}
		out = append(out, sentence)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Pattern applies regular expressions, in order, to the joined corpus text.
//
// The captured value is the group named by Group when set, the whole match
// when the expression has no groups, or the first non-empty group otherwise.
// Numeric patterns instead require every group to parse as a number and join
// them with "-", so "10-10-10" and "5.5–6.5" normalise the same way.
type Pattern struct {
	Exprs []*regexp.Regexp
	Group string
	// MaxLen bounds the capture length; zero uses Options.MaxFragmentLen.
	MaxLen    int
	Numeric   bool
	Normalize func(string) string
}

// Tier implements Strategy.
func (Pattern) Tier() Tier { return TierPattern }

func (p Pattern) extract(e *Engine, v corpus.View, limit int) []string {
	text := corpus.Join(v)
	if text == "" {
		return nil
	}
	maxLen := p.MaxLen
	if maxLen <= 0 {
		maxLen = e.opts.MaxFragmentLen
	}
	var out []string
	seen := make(map[string]struct{})
	for _, re := range p.Exprs {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			capture, ok := p.capture(re, m)
			if !ok {
				continue
			}
			if n := utf8.RuneCountInString(capture); n == 0 || n > maxLen {
				continue
			}
			if p.Normalize != nil {
				if capture = p.Normalize(capture); capture == "" {
					continue
				}
			}
			if _, dup := seen[capture]; dup {
				continue
			}
			seen[capture] = struct{}{}
			out = append(out, capture)
			if len(out) >= limit {
				return out
			}
		}
	}
	return out
}

func (p Pattern) capture(re *regexp.Regexp, m []string) (string, bool) {
	if p.Group != "" {
		if idx := re.SubexpIndex(p.Group); idx > 0 && idx < len(m) {
			return p.finish(m[idx])
		}
	}
	if len(m) == 1 {
		return p.finish(m[0])
	}
	if p.Numeric {
		parts := make([]string, 0, len(m)-1)
		for _, g := range m[1:] {
			if g == "" {
				continue
			}
			if _, ok := ParseFloat(g); !ok {
				return "", false
			}
			parts = append(parts, g)
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, "-"), true
	}
	for _, g := range m[1:] {
		if strings.TrimSpace(g) != "" {
			return p.finish(g)
		}
	}
	return "", false
}

func (p Pattern) finish(s string) (string, bool) {
	s = corpus.Clean(s)
	if p.Numeric {
		if _, ok := ParseFloat(s); !ok {
			return "", false
		}
	}
	return s, s != ""
}

// FromURL derives a value from the page URL when nothing on the page matched.
type FromURL struct {
	Derive func(u *url.URL) string
}

// Tier implements Strategy.
func (FromURL) Tier() Tier { return TierFallback }

func (f FromURL) extract(_ *Engine, v corpus.View, _ int) []string {
	if f.Derive == nil {
		return nil
	}
	u, err := url.Parse(v.URL())
	if err != nil {
		return nil
	}
	if text := strings.TrimSpace(f.Derive(u)); text != "" {
		return []string{text}
	}
	return nil
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
