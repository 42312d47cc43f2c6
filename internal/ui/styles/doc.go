// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for carechat.
//
// # Color Palette
//
// Every color is a lipgloss.AdaptiveColor so light and dark terminals both
// stay readable:
//
//   - Cyan: brand, prompts and the user's messages
//   - Purple: bot messages
//   - Amber: system messages and warnings
//   - Rose: errors and the blocked state
//   - Emerald: success and remaining quota
//
// # Themes
//
// NewThemeFor binds a renderer to one output so colors degrade to plain
// text when that output is not a terminal:
//
//	theme := styles.NewThemeFor(os.Stdout)
//	fmt.Println(theme.BotLabel.Render("Bot:"))
package styles
