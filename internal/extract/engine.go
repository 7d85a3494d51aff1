// Package extract implements the layered heuristic field extractor. Each
// record attribute is described by a FieldSpec listing strategies that are
// tried from most to least precise: structural selectors, keyword scans over
// text fragments, regular expressions over the joined page text and finally
// URL-derived fallbacks.
package extract

import (
	"sort"
	"strings"

	"github.com/JakeFAU/cropharvest/internal/corpus"
)

// Options tunes the keyword scan and the default capture length bound.
type Options struct {
	// MinFragmentLen excludes fragments of this many characters or fewer.
	MinFragmentLen int `mapstructure:"min_fragment_len"`
	// MaxFragmentLen excludes fragments of this many characters or more and
	// bounds pattern captures that do not set their own MaxLen.
	MaxFragmentLen int `mapstructure:"max_fragment_len"`
	// MaxMatches caps how many snippets a multi-valued field collects.
	MaxMatches int `mapstructure:"max_matches"`
	// Denylist drops fragments that look like navigation or boilerplate.
	Denylist []string `mapstructure:"denylist"`
	// ContentScope lists content-area selectors. Keyword scans read the
	// fragments of the first one present on the page and fall back to the
	// whole page when none is.
	ContentScope []string `mapstructure:"content_scope"`
}

// DefaultDenylist holds boilerplate markers seen on gardening sites.
var DefaultDenylist = []string{
	"navigation", "menu", "calendar", "holiday", "moon", "sun times",
	"sunrise", "set times", "best days", "copyright", "privacy", "terms",
	"subscribe", "newsletter", "store",
}

// DefaultContentScope holds the content areas gardening and extension sites
// put their article text in, most specific first.
var DefaultContentScope = []string{
	"div.content", "article", ".entry-content", ".post-content", ".main-content",
	"main", ".fertilizer", ".nutrition", ".feeding", "table", ".schedule", ".chart",
}

// DefaultOptions returns the thresholds used when none are configured.
func DefaultOptions() Options {
	return Options{
		MinFragmentLen: 15,
		MaxFragmentLen: 1000,
		MaxMatches:     5,
		Denylist:       append([]string(nil), DefaultDenylist...),
		ContentScope:   append([]string(nil), DefaultContentScope...),
	}
}

// Value is an extracted field: one or more cleaned snippets in document order.
type Value struct {
	Snippets []string
}

// Text returns the first snippet.
func (v Value) Text() string {
	if len(v.Snippets) == 0 {
		return ""
	}
	return v.Snippets[0]
}

// Float parses the first snippet as a finite number.
func (v Value) Float() (float64, bool) {
	return ParseFloat(v.Text())
}

// Fields maps field names to the values found for them. Missing keys are
// absent fields.
type Fields map[string]Value

// Has reports whether name was extracted.
func (f Fields) Has(name string) bool {
	_, ok := f[name]
	return ok
}

// Text returns the single-valued text of name or "".
func (f Fields) Text(name string) string {
	return f[name].Text()
}

// List returns every snippet found for name.
func (f Fields) List(name string) []string {
	v, ok := f[name]
	if !ok {
		return nil
	}
	return append([]string(nil), v.Snippets...)
}

// Float returns the numeric value of name, or nil when it is absent or not a
// number. Absent is never reported as zero.
func (f Fields) Float(name string) *float64 {
	v, ok := f[name].Float()
	if !ok {
		return nil
	}
	return &v
}

// Set stores a single-valued field, ignoring blank text.
func (f Fields) Set(name, text string) {
	if text = strings.TrimSpace(text); text != "" {
		f[name] = Value{Snippets: []string{text}}
	}
}

// FieldSpec declares how one record attribute is extracted.
type FieldSpec struct {
	Name string
	// Multi fields keep up to Options.MaxMatches snippets; others keep one.
	Multi      bool
	Strategies []Strategy
}

// Engine evaluates field specs against a corpus. It holds no per-document
// state and is safe for concurrent use.
type Engine struct {
	opts Options
	deny []string
}

// New builds an Engine, filling unset options from DefaultOptions.
func New(opts Options) *Engine {
	def := DefaultOptions()
	if opts.MinFragmentLen <= 0 {
		opts.MinFragmentLen = def.MinFragmentLen
	}
	if opts.MaxFragmentLen <= 0 {
		opts.MaxFragmentLen = def.MaxFragmentLen
	}
	if opts.MaxMatches <= 0 {
		opts.MaxMatches = def.MaxMatches
	}
	if opts.Denylist == nil {
		opts.Denylist = def.Denylist
	}
	if opts.ContentScope == nil {
		opts.ContentScope = def.ContentScope
	}
	deny := make([]string, 0, len(opts.Denylist))
	for _, d := range opts.Denylist {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			deny = append(deny, d)
		}
	}
	return &Engine{opts: opts, deny: deny}
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// Extract runs the strategies of spec in tier order and returns the first
// non-empty result. A miss is reported as ok == false, never as an error.
func (e *Engine) Extract(spec FieldSpec, v corpus.View) (Value, bool) {
	strategies := append([]Strategy(nil), spec.Strategies...)
	sort.SliceStable(strategies, func(i, j int) bool {
		return strategies[i].Tier() < strategies[j].Tier()
	})
	limit := 1
	if spec.Multi {
		limit = e.opts.MaxMatches
	}
	for _, s := range strategies {
		found := s.extract(e, v, limit)
		if len(found) == 0 {
			continue
		}
		if len(found) > limit {
			found = found[:limit]
		}
		return Value{Snippets: found}, true
	}
	return Value{}, false
}

// ExtractAll runs every spec and returns the fields that matched.
func (e *Engine) ExtractAll(specs []FieldSpec, v corpus.View) Fields {
	out := make(Fields, len(specs))
	for _, spec := range specs {
		if val, ok := e.Extract(spec, v); ok {
			out[spec.Name] = val
		}
	}
	return out
}

// scopedFragments returns the fragments of the first content area present in
// v, or every fragment when v has none or cannot be scoped.
func (e *Engine) scopedFragments(v corpus.View) []string {
	if scoper, ok := v.(corpus.Scoper); ok {
		for _, sel := range e.opts.ContentScope {
			if frags := scoper.FragmentsWithin(sel); len(frags) > 0 {
				return frags
			}
		}
	}
	return v.Fragments()
}

func (e *Engine) denied(lower string) bool {
	for _, d := range e.deny {
		if strings.Contains(lower, d) {
			return true
		}
	}
	return false
}
