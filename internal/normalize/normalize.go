// Package normalize holds the matching rules shared by variant consolidation
// and order line-item resolution. Both sides must agree on these exactly.
package normalize

import (
	"strings"
)

// sizelessTokens are size labels that mean "this product has no size".
var sizelessTokens = map[string]bool{
	"":     true,
	"n/a":  true,
	"na":   true,
	"none": true,
}

// SizelessKey is the size component used in keys for sizeless goods.
const SizelessKey = "n/a"

// Name lower-cases, trims and collapses internal whitespace.
func Name(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// EducationLevel uses the same folding as Name.
func EducationLevel(s string) string {
	return Name(s)
}

// Size normalizes a size label without removing its abbreviation suffix.
func Size(s string) string {
	return Name(s)
}

// StripAbbreviation removes a trailing parenthetical such as the "(S)" in
// "small (s)". Only the last group is removed.
func StripAbbreviation(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, ")") {
		return s
	}
	open := strings.LastIndex(s, "(")
	if open <= 0 {
		return s
	}
	return strings.TrimSpace(s[:open])
}

// SizeKey is the size component of a dedup key.
func SizeKey(s string) string {
	n := Size(s)
	if sizelessTokens[n] {
		return SizelessKey
	}
	return StripAbbreviation(n)
}

// IsSizeless reports whether s names no size at all.
func IsSizeless(s string) bool {
	return sizelessTokens[Size(s)]
}

// SplitSizes splits a legacy comma-joined size list, dropping empty tokens.
func SplitSizes(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsSizeList reports whether s is a legacy comma-joined size list.
func IsSizeList(s string) bool {
	return strings.Contains(s, ",")
}

// SizeMatches compares two size labels ignoring case, spacing and
// abbreviation suffix, so "Small" matches "Small (S)".
func SizeMatches(a, b string) bool {
	return SizeKey(a) == SizeKey(b)
}

// SizeIn reports whether size matches want directly or any member of a
// comma-joined want.
func SizeIn(size, want string) bool {
	if SizeMatches(size, want) {
		return true
	}
	if !IsSizeList(want) {
		return false
	}
	for _, tok := range SplitSizes(want) {
		if SizeMatches(size, tok) {
			return true
		}
	}
	return false
}

// Key builds the consolidation identity of a variant.
func Key(name, size, educationLevel string) string {
	return Name(name) + "|" + SizeKey(size) + "|" + EducationLevel(educationLevel)
}
