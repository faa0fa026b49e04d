// Package match scores external episode-catalog search results against a
// canonical media record. The score is a deterministic sum of three
// independent signals; a candidate is accepted only when the best score
// clears a fixed threshold.
package match

import (
	"strings"
	"unicode"
)

// Threshold is the minimum score a candidate must reach to count as a match.
const Threshold = 40

const (
	titleExactScore   = 50
	titlePartialScore = 30
	yearExactScore    = 20
	yearNearScore     = 10
	episodeExactScore = 20
	episodeNearScore  = 10
)

// Canonical is the media record being matched, with every known title
// variant in preference order (most specific localized title first).
type Canonical struct {
	Titles   []string
	Year     int
	Episodes int
}

// Candidate is one search result from an external catalog.
type Candidate struct {
	ID       int64
	Titles   []string
	Year     int
	Episodes int
}

// normalize lower-cases and strips all whitespace, Unicode included, so
// surface formatting differences never affect the title signal. Catalog
// titles regularly carry NBSP or ideographic spaces.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Score computes the candidate's total match score: best title pairing
// (50 exact / 30 containment, not cumulative), year proximity (20 exact /
// 10 off-by-one), and episode count (20 exact / 10 within 10% of the
// canonical count).
func Score(canon Canonical, cand Candidate) int {
	score := bestTitleScore(canon.Titles, cand.Titles)

	if canon.Year != 0 && cand.Year != 0 {
		switch diff := abs(canon.Year - cand.Year); diff {
		case 0:
			score += yearExactScore
		case 1:
			score += yearNearScore
		}
	}

	if canon.Episodes != 0 && cand.Episodes != 0 {
		diff := abs(canon.Episodes - cand.Episodes)
		tolerance := float64(canon.Episodes) * 0.1
		if diff == 0 {
			score += episodeExactScore
		} else if float64(diff) <= tolerance {
			score += episodeNearScore
		}
	}

	return score
}

func bestTitleScore(canonTitles, candTitles []string) int {
	best := 0
	for _, a := range canonTitles {
		na := normalize(a)
		if na == "" {
			continue
		}
		for _, c := range candTitles {
			nc := normalize(c)
			if nc == "" {
				continue
			}
			switch {
			case na == nc:
				if titleExactScore > best {
					best = titleExactScore
				}
			case strings.Contains(na, nc) || strings.Contains(nc, na):
				if titlePartialScore > best {
					best = titlePartialScore
				}
			}
		}
	}
	return best
}

// BestMatch returns the highest-scoring candidate and whether it clears the
// threshold. Order-independent: the maximum score decides, with earlier
// candidates winning exact ties.
func BestMatch(canon Canonical, cands []Candidate) (Candidate, int, bool) {
	var best Candidate
	bestScore := 0
	for _, cand := range cands {
		if s := Score(canon, cand); s > bestScore {
			bestScore = s
			best = cand
		}
	}
	return best, bestScore, bestScore >= Threshold
}

// SearchFunc queries an external catalog by a single title.
type SearchFunc func(title string) ([]Candidate, error)

// FindMatch tries the canonical title variants in their fixed preference
// order, searching and scoring each, until a thresholded match is found or
// every variant is exhausted.
func FindMatch(canon Canonical, search SearchFunc) (Candidate, bool, error) {
	for _, title := range canon.Titles {
		if strings.TrimSpace(title) == "" {
			continue
		}
		cands, err := search(title)
		if err != nil {
			return Candidate{}, false, err
		}
		if len(cands) == 0 {
			continue
		}
		if best, _, ok := BestMatch(canon, cands); ok {
			return best, true, nil
		}
	}
	return Candidate{}, false, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
