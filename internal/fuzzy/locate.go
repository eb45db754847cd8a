// Package fuzzy re-finds text whose recorded offset may have drifted.
//
// Offsets are counted in runes. The needle is matched literally and
// case-sensitively; the expected position only chooses between occurrences.
package fuzzy

import (
	"strings"
	"unicode/utf8"
)

// Occurrences returns the rune offset of every occurrence of needle in
// haystack, including overlapping ones, in ascending order. An empty needle
// has no occurrences.
func Occurrences(haystack, needle string) []int {
	if needle == "" {
		return nil
	}
	var positions []int
	byteOffset, runeOffset := 0, 0
	for byteOffset <= len(haystack) {
		idx := strings.Index(haystack[byteOffset:], needle)
		if idx < 0 {
			break
		}
		runeOffset += utf8.RuneCountInString(haystack[byteOffset : byteOffset+idx])
		byteOffset += idx
		positions = append(positions, runeOffset)

		_, size := utf8.DecodeRuneInString(haystack[byteOffset:])
		byteOffset += size
		runeOffset++
	}
	return positions
}

// Locate returns the occurrence of needle closest to expected. Ties go to
// the leftmost occurrence. found is false when needle does not occur.
func Locate(haystack, needle string, expected int) (pos int, found bool) {
	best, bestDistance := -1, 0
	for _, candidate := range Occurrences(haystack, needle) {
		distance := candidate - expected
		if distance < 0 {
			distance = -distance
		}
		if best < 0 || distance < bestDistance {
			best, bestDistance = candidate, distance
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}
