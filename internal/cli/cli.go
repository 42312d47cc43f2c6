// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command dispatch for carechat.
//
// CLI: Comprehensive help and examples for all commands
package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/jeranaias/carechat/internal/gateway"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const usageText = `carechat - terminal client for the care chat service

Usage:
  carechat [global flags] [command] [flags]

Commands:
  carechat                         Start the TUI (plain chat when not a terminal)
  carechat chat                    Line-oriented chat, reads stdin when piped
  carechat tui                     Full-screen chat
  carechat register                Register and remember your email
    --email EMAIL                  Email address (required)
    --age AGE                      Age, a non-negative integer (required)
    --sex SEX                      Sex (optional)
    --json                         Output in JSON format
  carechat whoami [--full] [--json]
                                   Show the registered email (masked unless --full)
  carechat logout                  Forget the registered email
  carechat topics [--json]         List the topic index
  carechat health [--json]         Probe the server
  carechat config show             Show the effective configuration
  carechat config path             Print the config file location
  carechat config init             Write a default config file
  carechat config get KEY          Print one setting (dot notation)
  carechat config set KEY VALUE    Change one setting in the config file
  carechat devserver               Run a local stand-in backend
    --addr HOST:PORT               Listen address (default 127.0.0.1:5001)
    --limit N                      Free message limit, 0 for unlimited (default 5)
  carechat version                 Show version information
  carechat help                    Show this help

Global Flags:
  --config PATH                    Use a specific config file
  --url URL                        Override server.url
  -v, --verbose                    Debug logging on stderr

Chat Commands:
  /help                            List chat commands
  /topics                          Show the topic index
  /usage                           Show your message quota
  /register EMAIL AGE [SEX]        Register without leaving the chat
  /whoami                          Show the registered email
  /cancel                          Abandon the reply being waited for
  /clear                           Clear the screen
  /quit, /exit                     Leave

Environment:
  CARECHAT_URL, CARECHAT_TIMEOUT_SECS, CARECHAT_RPS,
  CARECHAT_IDENTITY_BACKEND, CARECHAT_IDENTITY_PATH,
  CARECHAT_LOG_LEVEL, CARECHAT_LOG_FORMAT

Examples:
  carechat register --email alice@example.com --age 34 --sex F
  echo "I can't sleep" | carechat chat
  carechat --url http://127.0.0.1:5001 topics --json
  carechat config set server.timeout_secs 60
`

// commandFunc is the signature shared by every command handler.
type commandFunc func(ctx context.Context, a *app, args []string) error

// commands maps command names and aliases to handlers. help and version
// are handled before configuration is loaded.
var commands = map[string]commandFunc{
	"chat":      cmdChat,
	"tui":       cmdTUI,
	"register":  cmdRegister,
	"signup":    cmdRegister,
	"whoami":    cmdWhoami,
	"logout":    cmdLogout,
	"topics":    cmdTopics,
	"health":    cmdHealth,
	"status":    cmdHealth,
	"config":    cmdConfig,
	"devserver": cmdDevServer,
	"serve":     cmdDevServer,
}

// Run executes one carechat invocation and returns the process exit code.
func Run(ctx context.Context, args []string, stdio IO) int {
	gateway.UserAgent = "carechat/" + Version

	opts, rest, err := splitGlobalFlags(args)
	if err != nil {
		printError(stdio.Err, err)
		return ExitCodeFor(err)
	}

	command := defaultCommand(stdio)
	if len(rest) > 0 {
		command = strings.ToLower(rest[0])
		rest = rest[1:]
	}

	switch command {
	case "help", "-h", "--help":
		fmt.Fprint(stdio.Out, usageText)
		return ExitSuccess
	case "version", "--version":
		printVersion(stdio.Out)
		return ExitSuccess
	}

	handler, ok := commands[command]
	if !ok {
		err := &UsageError{Reason: fmt.Sprintf("unknown command %q", command)}
		printError(stdio.Err, err)
		if suggestion := SuggestCommand(command); suggestion != "" {
			fmt.Fprintf(stdio.Err, "Did you mean '%s'?\n", suggestion)
		}
		fmt.Fprintln(stdio.Err, "Run 'carechat help' for usage.")
		return ExitUsageError
	}

	a, err := newApp(opts, stdio)
	if err != nil {
		printError(stdio.Err, err)
		return ExitCodeFor(err)
	}
	defer a.close()

	if err := handler(ctx, a, rest); err != nil {
		printError(stdio.Err, &CommandError{Command: command, Err: err})
		return ExitCodeFor(err)
	}
	return ExitSuccess
}

// defaultCommand picks the TUI for interactive terminals and the line
// chat otherwise, so "echo hi | carechat" works.
func defaultCommand(stdio IO) string {
	if isTerminal(stdio.In) && isTerminal(stdio.Out) {
		return "tui"
	}
	return "chat"
}

func printError(w io.Writer, err error) {
	s := newStyles(w, colorProfile(w))
	fmt.Fprintf(w, "%s %v\n", s.errText.Render("Error:"), err)
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "carechat %s\n", Version)
	fmt.Fprintf(w, "  Commit:  %s\n", GitCommit)
	fmt.Fprintf(w, "  Built:   %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:      %s\n", runtime.Version())
	fmt.Fprintf(w, "  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
