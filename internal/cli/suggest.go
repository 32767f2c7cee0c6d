// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// suggest.go - Did-you-mean suggestions for mistyped commands.
package cli

import (
	"strings"
)

// validCommands lists every top-level command and alias.
var validCommands = []string{
	"tui",
	"chat",
	"ask",
	"market",
	"data",
	"history",
	"config",
	"serve-stub",
	"doctor",
	"version",
	"help",
	// Aliases
	"hist",     // history
	"sessions", // history
	"serve",    // serve-stub
	"stub",     // serve-stub
	"diag",     // doctor
}

// SuggestCommand returns the closest valid command to input, or "" when
// nothing is close enough. Short inputs allow fewer edits.
func SuggestCommand(input string) string {
	input = strings.ToLower(input)
	if len(input) < 2 {
		return ""
	}

	maxDistance := 1
	switch {
	case len(input) > 8:
		maxDistance = 3
	case len(input) >= 4:
		maxDistance = 2
	}

	best, bestDistance := "", maxDistance+1
	for _, cmd := range validCommands {
		d := levenshtein(input, cmd)
		if d == 0 {
			return ""
		}
		if d < bestDistance {
			best, bestDistance = cmd, d
		}
	}
	return best
}

// levenshtein is the byte-wise edit distance between a and b.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
