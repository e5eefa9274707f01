// Package hla parses free-text tissue-typing strings into per-locus antigen sets
// and counts donor/recipient overlaps.
//
// Parsing is permissive: tokens that do not belong to the A, B, DR or DQ loci are
// dropped without error. Stored typing strings already rely on this behavior, so
// ParseWithReport exposes the dropped tokens instead of rejecting the input.
package hla

import (
	"strings"
)

// Locus identifies one of the four typed loci.
type Locus string

const (
	LocusA  Locus = "A"
	LocusB  Locus = "B"
	LocusDR Locus = "DR"
	LocusDQ Locus = "DQ"
)

// Set is an unordered set of antigen tokens.
type Set map[string]struct{}

// Has reports whether token is in the set.
func (s Set) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Intersect counts tokens present in both sets.
func (s Set) Intersect(other Set) int {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	n := 0
	for token := range small {
		if large.Has(token) {
			n++
		}
	}
	return n
}

// Typing is the structured form of a typing string.
type Typing struct {
	A  Set
	B  Set
	DR Set
	DQ Set
}

// Empty reports whether no locus carries any token.
func (t Typing) Empty() bool {
	return len(t.A) == 0 && len(t.B) == 0 && len(t.DR) == 0 && len(t.DQ) == 0
}

// Report describes what the parser discarded.
type Report struct {
	Tokens  int      `json:"tokens"`
	Dropped []string `json:"dropped,omitempty"`
}

// Clean reports whether every token was assigned to a locus.
func (r Report) Clean() bool {
	return len(r.Dropped) == 0
}

// Parse converts a typing string such as "A2 A24 B7 DR4 DQ6" into a Typing.
func Parse(input string) Typing {
	t, _ := ParseWithReport(input)
	return t
}

// ParseWithReport parses input and also returns the tokens that were dropped.
func ParseWithReport(input string) (Typing, Report) {
	t := Typing{A: Set{}, B: Set{}, DR: Set{}, DQ: Set{}}
	var report Report

	tokens := strings.FieldsFunc(input, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n', '\r':
			return true
		}
		return false
	})

	for _, raw := range tokens {
		token := strings.ToUpper(strings.TrimSpace(raw))
		if token == "" {
			continue
		}
		report.Tokens++

		// DR and DQ must be checked before the single-letter loci.
		switch {
		case strings.HasPrefix(token, "DR"):
			t.DR[token] = struct{}{}
		case strings.HasPrefix(token, "DQ"):
			t.DQ[token] = struct{}{}
		case strings.HasPrefix(token, "A"):
			t.A[token] = struct{}{}
		case strings.HasPrefix(token, "B"):
			t.B[token] = struct{}{}
		default:
			report.Dropped = append(report.Dropped, token)
		}
	}

	return t, report
}

// LocusMatches holds exact-token overlap counts per locus. Total covers A, B and DR
// only; DQ is tracked separately as a bonus signal.
type LocusMatches struct {
	A     int `json:"a"`
	B     int `json:"b"`
	DR    int `json:"dr"`
	DQ    int `json:"dq"`
	Total int `json:"total"`
}

// Compare counts overlapping antigens between donor and recipient typings.
func Compare(donor, recipient Typing) LocusMatches {
	m := LocusMatches{
		A:  donor.A.Intersect(recipient.A),
		B:  donor.B.Intersect(recipient.B),
		DR: donor.DR.Intersect(recipient.DR),
		DQ: donor.DQ.Intersect(recipient.DQ),
	}
	m.Total = m.A + m.B + m.DR
	return m
}
