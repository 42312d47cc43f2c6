// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// suggest.go - "Did you mean" hints for mistyped commands and slash commands.
package cli

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// validCommands lists every top-level command and alias.
var validCommands = []string{
	"chat",
	"tui",
	"register",
	"whoami",
	"logout",
	"topics",
	"health",
	"config",
	"devserver",
	"version",
	"help",
	// Aliases
	"signup",
	"status",
	"serve",
}

// validSlashCommands lists the commands accepted inside the chat REPL.
var validSlashCommands = []string{
	"/help",
	"/quit",
	"/exit",
	"/cancel",
	"/topics",
	"/usage",
	"/register",
	"/whoami",
	"/clear",
}

// SuggestCommand returns the closest valid command to input, or "" when
// nothing is close enough.
func SuggestCommand(input string) string {
	return suggestFrom(input, validCommands)
}

// suggestSlash is SuggestCommand for REPL commands.
func suggestSlash(input string) string {
	return suggestFrom(input, validSlashCommands)
}

func suggestFrom(input string, candidates []string) string {
	input = strings.ToLower(input)

	// Don't suggest for very short inputs (likely intentional)
	if len(strings.TrimPrefix(input, "/")) < 2 {
		return ""
	}

	// One edit for short inputs, two for medium, three for long.
	maxDistance := 1
	if len(input) >= 4 {
		maxDistance = 2
	}
	if len(input) > 8 {
		maxDistance = 3
	}

	bestMatch := ""
	bestDistance := -1
	for _, cmd := range candidates {
		distance := levenshtein.ComputeDistance(input, cmd)
		if distance == 0 {
			return ""
		}
		if distance <= maxDistance && (bestDistance == -1 || distance < bestDistance) {
			bestDistance = distance
			bestMatch = cmd
		}
	}
	return bestMatch
}
