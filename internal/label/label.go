// Package label holds the closed set of produce categories the classifier
// recognizes, plus the normalization applied to raw model output.
package label

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Label is one of the known produce categories, or Unrecognized.
type Label int

const (
	Unrecognized Label = iota
	Apple
	Orange
	Banana
	Watermelon
	Strawberry
	TenderCoconut
)

// Known lists the recognized labels in display order.
var Known = []Label{Apple, Orange, Banana, Watermelon, Strawberry, TenderCoconut}

var names = map[Label]string{
	Apple:         "Apple",
	Orange:        "Orange",
	Banana:        "Banana",
	Watermelon:    "Watermelon",
	Strawberry:    "Strawberry",
	TenderCoconut: "Tender Coconut",
}

// Destination directory tokens for saved snapshots. Static, never mutated.
var snapshotTokens = map[Label]string{
	Apple:         "apple",
	Orange:        "orange",
	Banana:        "banana",
	Watermelon:    "watermelon",
	Strawberry:    "strawberry",
	TenderCoconut: "tender-coconut",
}

var byName = func() map[string]Label {
	m := make(map[string]Label, len(names))
	for l, n := range names {
		m[n] = l
	}
	return m
}()

// String returns the canonical label text, or "" for Unrecognized.
func (l Label) String() string {
	return names[l]
}

// Known reports whether l is one of the six recognized categories.
func (l Label) Known() bool {
	_, ok := names[l]
	return ok
}

// DisplayKey is the element key of the counter shown for l. Spaces in
// multi-word labels become hyphens: "count-Tender-Coconut".
func (l Label) DisplayKey() string {
	if !l.Known() {
		return ""
	}
	return "count-" + strings.ReplaceAll(names[l], " ", "-")
}

// SnapshotToken is the path token snapshots of l are filed under.
func (l Label) SnapshotToken() (string, bool) {
	t, ok := snapshotTokens[l]
	return t, ok
}

// Parse maps normalized label text to a Label. Text outside the known set
// yields Unrecognized.
func Parse(normalized string) Label {
	if l, ok := byName[normalized]; ok {
		return l
	}
	return Unrecognized
}

// Normalize capitalizes each whitespace-delimited word of raw and lowercases
// the rest, so "tender coconut" and "TENDER  COCONUT" both become
// "Tender Coconut". Only the first rune of a word is raised: "3d apple"
// becomes "3d Apple".
func Normalize(raw string) string {
	words := strings.Fields(norm.NFKC.String(raw))
	upper := cases.Upper(language.Und)
	lower := cases.Lower(language.Und)
	for i, w := range words {
		_, size := utf8.DecodeRuneInString(w)
		words[i] = upper.String(w[:size]) + lower.String(w[size:])
	}
	return strings.Join(words, " ")
}
