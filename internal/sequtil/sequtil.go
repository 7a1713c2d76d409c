// Package sequtil provides DNA string helpers for content scoring.
package sequtil

import (
	"fmt"
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize strips whitespace and upper-cases a nucleotide string.
func Normalize(s string) string {
	return strings.ToUpper(whitespaceRe.ReplaceAllString(s, ""))
}

// Code maps a nucleotide to 0..3 (A, C, G, T), case-insensitive.
func Code(b byte) (int, bool) {
	switch b {
	case 'A', 'a':
		return 0, true
	case 'C', 'c':
		return 1, true
	case 'G', 'g':
		return 2, true
	case 'T', 't':
		return 3, true
	}
	return 0, false
}

// NumWords returns the number of distinct words of the given degree.
func NumWords(degree int) int {
	return 1 << (2 * degree)
}

// Words returns, for every position i, the base-4 code of the degree-long
// word starting at i with the first nucleotide most significant. Words
// running past the end of seq are padded with A.
func Words(seq []byte, degree int) ([]int, error) {
	codes := make([]int, len(seq))
	for i, b := range seq {
		c, ok := Code(b)
		if !ok {
			return nil, fmt.Errorf("sequtil: invalid nucleotide %q at %d", b, i)
		}
		codes[i] = c
	}
	words := make([]int, len(seq))
	for i := range seq {
		w := 0
		for k := range degree {
			w <<= 2
			if i+k < len(codes) {
				w |= codes[i+k]
			}
		}
		words[i] = w
	}
	return words, nil
}

// IsStopCodon reports whether the triplet starting at seq[i] is TAA, TAG
// or TGA, case-insensitive.
func IsStopCodon(seq []byte, i int) bool {
	if i < 0 || i+2 >= len(seq) {
		return false
	}
	a, b, c := upper(seq[i]), upper(seq[i+1]), upper(seq[i+2])
	if a != 'T' {
		return false
	}
	return (b == 'A' && (c == 'A' || c == 'G')) || (b == 'G' && c == 'A')
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
