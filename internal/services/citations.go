// Package services – citation rewriting
//
// Models are prompted to cite contexts as [citation:x] but in practice emit a
// mix of [[citation:x]], [[Citation:x]], and half-closed variants. The
// rewrite normalizes all of them into Markdown links of the form
// [citation](x), which the client renders against the sources list.
package services

import "regexp"

var (
	citationOpenRE   = regexp.MustCompile(`\[\[[cC]itation`)
	citationCloseRE  = regexp.MustCompile(`[cC]itation:(\d+)\]\]`)
	citationDoubleRE = regexp.MustCompile(`\[\[([cC]itation:\d+)\]\]([^\]]|$)`)
	citationLinkRE   = regexp.MustCompile(`\[[cC]itation:(\d+)\]`)
)

// rewriteCitations normalizes citation markers in text into Markdown links.
// It is applied to the accumulated content rather than raw deltas because a
// marker can be split across token boundaries.
func rewriteCitations(text string) string {
	text = citationOpenRE.ReplaceAllString(text, "[citation")
	text = citationCloseRE.ReplaceAllString(text, "citation:$1]")
	text = citationDoubleRE.ReplaceAllString(text, "[$1]$2")
	return citationLinkRE.ReplaceAllString(text, "[citation]($1)")
}
