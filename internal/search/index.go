// Package search provides the deterministic, concurrency-safe in-memory
// knowledge index behind the assistant's "search" tool. It is built from
// Markdown paragraphs and is intentionally small:
//
//   - No logging in the library (callers decide how/what to log)
//   - Case-folded, Unicode-aware tokenization with optional stop-word removal
//   - Immutable, read-only index after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//   - Each result carries the nearest Markdown heading as its Section, which
//     the assistant surfaces as the citation source name
//
// Scoring uses Jaccard similarity between the query token set and each
// paragraph's token set: score = |Q ∩ P| / |Q ∪ P|.
package search

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Result is a ranked snippet with its similarity score. Section is the text
// of the nearest Markdown heading above the snippet (may be empty for
// documents without headings); the assistant uses it to label citations.
type Result struct {
	Section string
	Snippet string
	Score   float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
}

// Option configures index construction.
type Option func(*settings)

type settings struct {
	minRunes  int
	stopwords map[string]struct{}
	maxDocs   int
}

// WithMinParagraphRunes sets the minimum paragraph length, in runes, below
// which a paragraph is not indexed. Zero disables the filter.
func WithMinParagraphRunes(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.minRunes = n
		}
	}
}

// WithStopwords excludes the given words from both document and query tokens.
func WithStopwords(words []string) Option {
	return func(s *settings) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			s.stopwords = m
		}
	}
}

// WithMaxDocs caps how many paragraphs are indexed; extra paragraphs are
// silently dropped in document order.
func WithMaxDocs(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxDocs = n
		}
	}
}

// entry is one indexed paragraph with its precomputed token set.
type entry struct {
	section string
	text    string
	tokens  map[string]struct{}
}

// fragment is a raw paragraph paired with the heading it appeared under.
type fragment struct {
	section string
	text    string
}

type index struct {
	cfg     settings
	entries []entry
}

// NewIndexFromMarkdown reads the Markdown file at path and indexes it.
func NewIndexFromMarkdown(path string, opts ...Option) (Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return &index{cfg: apply(opts)}, err
	}
	return NewIndexFromReader(bytes.NewReader(b), opts...)
}

// NewIndexFromReader consumes r as UTF-8 Markdown and indexes its paragraphs.
// Paragraphs are split on blank lines.
func NewIndexFromReader(r io.Reader, opts ...Option) (Index, error) {
	cfg := apply(opts)
	all, err := io.ReadAll(r)
	if err != nil {
		return &index{cfg: cfg}, err
	}
	return assemble(splitFragments(string(all)), cfg), nil
}

// NewIndexFromStrings indexes a slice of ready-made paragraphs. Paragraphs
// provided this way carry no Section.
func NewIndexFromStrings(paragraphs []string, opts ...Option) Index {
	frags := make([]fragment, 0, len(paragraphs))
	for _, p := range paragraphs {
		frags = append(frags, fragment{text: p})
	}
	return assemble(frags, apply(opts))
}

func apply(opts []Option) settings {
	cfg := settings{minRunes: 40}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func assemble(frags []fragment, cfg settings) *index {
	idx := &index{cfg: cfg, entries: make([]entry, 0, len(frags))}
	for _, f := range frags {
		if cfg.maxDocs > 0 && len(idx.entries) >= cfg.maxDocs {
			break
		}
		text := strings.TrimSpace(collapseSpace(f.text))
		if text == "" {
			continue
		}
		if cfg.minRunes > 0 && utf8.RuneCountInString(text) < cfg.minRunes {
			continue
		}
		toks := tokenize(text, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		idx.entries = append(idx.entries, entry{section: f.section, text: text, tokens: toks})
	}
	return idx
}

// TopK returns up to k best-matching paragraphs by Jaccard similarity.
// Ties break toward shorter snippets, then lexicographic order, so repeated
// queries always rank identically.
func (i *index) TopK(q string, k int) []Result {
	if len(i.entries) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	type candidate struct {
		entry *entry
		score float64
		runes int
	}
	var hits []candidate
	for n := range i.entries {
		e := &i.entries[n]
		shared := intersect(qTokens, e.tokens)
		if shared == 0 {
			continue
		}
		union := len(qTokens) + len(e.tokens) - shared
		if union <= 0 {
			continue
		}
		hits = append(hits, candidate{
			entry: e,
			score: float64(shared) / float64(union),
			runes: utf8.RuneCountInString(e.text),
		})
	}
	if len(hits) == 0 {
		return nil
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		if hits[a].runes != hits[b].runes {
			return hits[a].runes < hits[b].runes
		}
		return hits[a].entry.text < hits[b].entry.text
	})

	if k > len(hits) {
		k = len(hits)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{
			Section: hits[n].entry.section,
			Snippet: hits[n].entry.text,
			Score:   hits[n].score,
		}
	}
	return out
}

var tokenRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	// Full Unicode case folding, not just ASCII lowercasing: the knowledge
	// base and the prompts it is matched against are not English-only.
	words := tokenRE.FindAllString(cases.Fold().String(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func intersect(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

// collapseSpace squeezes runs of spaces, tabs, and carriage returns into a
// single space, leaving newlines and all other runes intact.
func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\r':
			if !inRun {
				b.WriteByte(' ')
				inRun = true
			}
		default:
			inRun = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

var blankLineRE = regexp.MustCompile(`\n\s*\n`)

// splitFragments splits text into paragraphs on blank lines, tracking the
// most recent Markdown heading so each paragraph knows its section.
// Heading-only chunks update the current section and are not indexed
// themselves.
func splitFragments(raw string) []fragment {
	chunks := blankLineRE.Split(raw, -1)
	out := make([]fragment, 0, len(chunks))
	section := ""
	for _, c := range chunks {
		t := strings.TrimSpace(c)
		if t == "" {
			continue
		}
		if strings.HasPrefix(t, "#") {
			head, rest, _ := strings.Cut(t, "\n")
			section = strings.TrimSpace(strings.TrimLeft(head, "# "))
			if t = strings.TrimSpace(rest); t == "" {
				continue
			}
		}
		out = append(out, fragment{section: section, text: t})
	}
	return out
}
