// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - One-shot command handlers: register, whoami, logout,
// topics, health, config and devserver.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/carechat/internal/config"
	"github.com/jeranaias/carechat/internal/fakebackend"
	"github.com/jeranaias/carechat/internal/health"
	"github.com/jeranaias/carechat/internal/identity"
	"github.com/jeranaias/carechat/internal/registration"
	"github.com/jeranaias/carechat/internal/topics"
	"github.com/jeranaias/carechat/internal/util"
)

// =============================================================================
// REGISTER / WHOAMI / LOGOUT
// =============================================================================

const registerUsage = "usage: carechat register --email EMAIL --age AGE [--sex SEX]"

// identityView is the --json shape of an identity.
type identityView struct {
	Email      string `json:"email"`
	Status     string `json:"status,omitempty"`
	Message    string `json:"message,omitempty"`
	UsageCount int    `json:"usage_count"`
	Restored   bool   `json:"restored"`
}

func viewOf(id identity.Identity, email string) identityView {
	return identityView{
		Email:      email,
		Status:     id.Status,
		Message:    id.Message,
		UsageCount: id.UsageCount,
		Restored:   id.Restored(),
	}
}

// parseProfile reads a profile from flags, falling back to positionals in
// EMAIL AGE SEX order.
func parseProfile(p *ArgParser, offset int) (registration.Profile, error) {
	email := p.FlagOrDefault("email", p.Positional(offset))
	if email == "" {
		return registration.Profile{}, &UsageError{Reason: "email is required; " + registerUsage}
	}
	ageText := p.FlagOrDefault("age", p.Positional(offset+1))
	if ageText == "" {
		return registration.Profile{}, &UsageError{Reason: "age is required; " + registerUsage}
	}
	age, err := strconv.Atoi(strings.TrimSpace(ageText))
	if err != nil {
		return registration.Profile{}, &registration.ValidationError{Field: "age", Reason: "must be a non-negative integer"}
	}
	return registration.Profile{
		Email: email,
		Age:   age,
		Sex:   p.FlagOrDefault("sex", p.Positional(offset+2)),
	}, nil
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	p := NewArgParser(args, "json")
	jsonMode := p.BoolFlag("json")

	profile, err := parseProfile(p, 0)
	if err != nil {
		return err
	}
	mgr, err := a.registration(ctx)
	if err != nil {
		return err
	}

	return OutputJSON(a.io.Out, jsonMode, "register", func() (interface{}, error) {
		id, err := mgr.Register(ctx, profile)
		if err != nil {
			return nil, err
		}
		if !jsonMode {
			printRegistered(a.io.Out, a.out, id)
		}
		return viewOf(id, id.Email), nil
	})
}

func printRegistered(w io.Writer, s *styles, id identity.Identity) {
	fmt.Fprintf(w, "%s Registered as %s", s.ok.Render("OK"), id.Email)
	if id.Status != "" {
		fmt.Fprintf(w, " (%s)", id.Status)
	}
	fmt.Fprintln(w)
	if id.Message != "" {
		fmt.Fprintln(w, id.Message)
	}
}

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	p := NewArgParser(args, "json", "full")
	jsonMode := p.BoolFlag("json")

	return OutputJSON(a.io.Out, jsonMode, "whoami", func() (interface{}, error) {
		id, err := a.requireIdentity(ctx)
		if err != nil {
			return nil, err
		}
		email := util.MaskEmail(id.Email)
		if p.BoolFlag("full") {
			email = id.Email
		}
		if !jsonMode {
			fmt.Fprintln(a.io.Out, email)
		}
		return viewOf(id, email), nil
	})
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	mgr, err := a.registration(ctx)
	if err != nil {
		return err
	}
	if _, ok := mgr.Current(); !ok {
		fmt.Fprintln(a.io.Out, "Not registered.")
		return nil
	}
	if err := mgr.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.io.Out, "Logged out.")
	return nil
}

// =============================================================================
// TOPICS / HEALTH
// =============================================================================

func cmdTopics(ctx context.Context, a *app, args []string) error {
	p := NewArgParser(args, "json")
	jsonMode := p.BoolFlag("json")

	return OutputJSON(a.io.Out, jsonMode, "topics", func() (interface{}, error) {
		index, err := a.topics().Fetch(ctx)
		if err != nil {
			return nil, err
		}
		if !jsonMode {
			printTopics(a.io.Out, a.out, index, terminalWidth(a.io.Out))
		}
		return index, nil
	})
}

func printTopics(w io.Writer, s *styles, index topics.Index, width int) {
	fmt.Fprintf(w, "%s %d sections\n", s.system.Render("Topics:"), index.TotalSections)
	if len(index.Topics) == 0 {
		fmt.Fprintln(w, s.muted.Render("  (no topics)"))
		return
	}
	for _, entry := range index.Topics {
		fmt.Fprintf(w, "  [%s] %s\n", entry.ID, s.bot.Render(entry.Source))
		if len(entry.Topics) > 0 {
			fmt.Fprintf(w, "      %s\n", strings.Join(entry.Topics, ", "))
		}
		if entry.Preview != "" {
			preview := WrapText(entry.Preview, width-6)
			for _, line := range strings.Split(preview, "\n") {
				fmt.Fprintf(w, "      %s\n", s.muted.Render(line))
			}
		}
	}
}

func cmdHealth(ctx context.Context, a *app, args []string) error {
	p := NewArgParser(args, "json")
	jsonMode := p.BoolFlag("json")

	type healthView struct {
		URL       string `json:"url"`
		Status    string `json:"status,omitempty"`
		Body      string `json:"body"`
		LatencyMS int64  `json:"latency_ms"`
	}

	return OutputJSON(a.io.Out, jsonMode, "health", func() (interface{}, error) {
		report, err := health.Check(ctx, a.gw)
		if err != nil {
			return nil, err
		}
		view := healthView{
			URL:       a.gw.BaseURL(),
			Status:    report.Status(),
			Body:      report.Body,
			LatencyMS: report.Latency.Milliseconds(),
		}
		if !jsonMode {
			fmt.Fprintf(a.io.Out, "%s %s (%s)\n",
				a.out.ok.Render("UP"), view.URL, report.Latency.Round(time.Millisecond))
			if report.Body != "" {
				fmt.Fprintln(a.io.Out, report.Body)
			}
		}
		return view, nil
	})
}

// =============================================================================
// CONFIG
// =============================================================================

func cmdConfig(ctx context.Context, a *app, args []string) error {
	p := NewArgParser(args, "json", "force")

	switch sub := p.Subcommand(); sub {
	case "", "show":
		if p.BoolFlag("json") {
			return NewJSONResponse("config show", a.cfg).Write(a.io.Out)
		}
		fmt.Fprintln(a.io.Out, a.cfg.String())
		return nil

	case "path":
		fmt.Fprintln(a.io.Out, a.cfgPath)
		return nil

	case "init":
		if _, err := os.Stat(a.cfgPath); err == nil && !p.BoolFlag("force") {
			return &UsageError{Reason: fmt.Sprintf("%s already exists (use --force to overwrite)", a.cfgPath)}
		}
		if err := config.SaveTOML(config.Default(), a.cfgPath); err != nil {
			return err
		}
		fmt.Fprintf(a.io.Out, "Wrote %s\n", a.cfgPath)
		return nil

	case "get":
		key := p.Positional(1)
		if key == "" {
			return &UsageError{Reason: "usage: carechat config get KEY (keys: " + strings.Join(config.GetAllKeys(), ", ") + ")"}
		}
		value, err := a.cfg.Get(key)
		if err != nil {
			return &UsageError{Reason: err.Error()}
		}
		fmt.Fprintln(a.io.Out, value)
		return nil

	case "set":
		key, value := p.Positional(1), p.Positional(2)
		if key == "" || p.PositionalCount() < 3 {
			return &UsageError{Reason: "usage: carechat config set KEY VALUE"}
		}
		return setConfigValue(a, key, value)

	case "keys":
		keys := config.GetAllKeys()
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintln(a.io.Out, key)
		}
		return nil

	default:
		return &UsageError{Reason: fmt.Sprintf("unknown config subcommand %q (show, path, init, get, set, keys)", sub)}
	}
}

// setConfigValue edits the file on disk, not the effective config, so
// environment overrides are never written back.
func setConfigValue(a *app, key, value string) error {
	cfg := config.Default()
	if _, err := os.Stat(a.cfgPath); err == nil {
		if err := config.LoadTOML(cfg, a.cfgPath); err != nil {
			return err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := cfg.Set(key, value); err != nil {
		return &UsageError{Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, a.cfgPath); err != nil {
		return err
	}
	fmt.Fprintf(a.io.Out, "%s = %s\n", key, value)
	return nil
}

// =============================================================================
// DEVSERVER
// =============================================================================

func cmdDevServer(ctx context.Context, a *app, args []string) error {
	p := NewArgParser(args, "reject-duplicates")

	limit := fakebackend.DefaultLimit
	if p.HasFlag("limit") {
		n, err := p.FlagInt("limit")
		if err != nil {
			return err
		}
		limit = n
	}

	opts := []fakebackend.Option{
		fakebackend.WithLimit(limit),
		fakebackend.WithLogger(a.logger),
	}
	if p.BoolFlag("reject-duplicates") {
		opts = append(opts, fakebackend.WithRejectDuplicates())
	}
	backend := fakebackend.New(opts...)

	ready := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- backend.Serve(ctx, p.FlagOrDefault("addr", fakebackend.DefaultAddr), ready)
	}()

	select {
	case addr := <-ready:
		fmt.Fprintf(a.io.Out, "Fake backend listening on http://%s (free limit %d). Ctrl+C to stop.\n", addr, limit)
	case err := <-errCh:
		return err
	}
	return <-errCh
}
