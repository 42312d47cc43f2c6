// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jeranaias/carechat/internal/config"
	"github.com/jeranaias/carechat/internal/gateway"
	"github.com/jeranaias/carechat/internal/identity"
	"github.com/jeranaias/carechat/internal/registration"
	"github.com/jeranaias/carechat/internal/topics"
)

// IO bundles the streams a command reads from and writes to.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdIO returns the process streams.
func StdIO() IO {
	return IO{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// app is the per-invocation runtime shared by command handlers.
type app struct {
	io      IO
	opts    GlobalOptions
	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger
	out     *styles
	errOut  *styles

	gw           *gateway.Gateway
	cache        *identity.Cache
	identityPath string
}

// newApp loads configuration and builds the logger and gateway. The
// identity store is opened on demand by openIdentity.
func newApp(opts GlobalOptions, stdio IO) (*app, error) {
	cfg, cfgPath, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	config.SetGlobal(cfg)

	a := &app{
		io:      stdio,
		opts:    opts,
		cfg:     cfg,
		cfgPath: cfgPath,
		logger:  newLogger(cfg.Logging, stdio.Err),
		out:     newStyles(stdio.Out, colorProfile(stdio.Out)),
		errOut:  newStyles(stdio.Err, colorProfile(stdio.Err)),
	}
	a.gw = gateway.New(cfg.Server.URL, gateway.Options{
		Timeout:           cfg.Timeout(),
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
	})
	a.logger.Debug("configuration loaded",
		"path", cfgPath,
		"server", cfg.Server.URL,
		"identity_backend", cfg.Identity.Backend,
	)
	return a, nil
}

// loadConfig resolves the config file, then applies --url and --verbose on
// top of file and environment values.
func loadConfig(opts GlobalOptions) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if opts.ConfigPath != "" {
		path = opts.ConfigPath
		cfg, err = config.LoadFromPath(path)
	} else {
		path, _ = config.ConfigPath()
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, path, err
	}

	if opts.URL != "" {
		cfg.Server.URL = opts.URL
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

// newLogger builds the slog handler described by the logging section.
func newLogger(lc config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelWarn
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(lc.Format, "json") {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// openIdentity opens the configured store and restores the cached email.
func (a *app) openIdentity(ctx context.Context) error {
	if a.cache != nil {
		return nil
	}
	path, err := a.cfg.IdentityPath()
	if err != nil {
		return err
	}
	store, err := identity.OpenStore(a.cfg.Identity.Backend, path)
	if err != nil {
		return fmt.Errorf("open identity store: %w", err)
	}
	cache := identity.NewCache(store)
	if err := cache.Restore(ctx); err != nil {
		cache.Close()
		return err
	}
	a.cache = cache
	a.identityPath = path
	return nil
}

// registration returns a manager bound to the identity cache.
func (a *app) registration(ctx context.Context) (*registration.Manager, error) {
	if err := a.openIdentity(ctx); err != nil {
		return nil, err
	}
	return registration.NewManager(a.gw, a.cache, a.logger), nil
}

// topics returns a topic index client.
func (a *app) topics() *topics.Client {
	return topics.NewClient(a.gw,
		topics.WithMaxRetries(a.cfg.Topics.MaxRetries),
		topics.WithLogger(a.logger),
	)
}

// requireIdentity opens the store and fails when nobody is registered.
func (a *app) requireIdentity(ctx context.Context) (identity.Identity, error) {
	if err := a.openIdentity(ctx); err != nil {
		return identity.Identity{}, err
	}
	id, ok := a.cache.Current()
	if !ok {
		return identity.Identity{}, errNotRegistered
	}
	return id, nil
}

// watchable reports whether the identity backend lives in a file that
// another process can change under us.
func (a *app) watchable() bool {
	switch strings.ToLower(a.cfg.Identity.Backend) {
	case config.BackendFile, config.BackendSQLite:
		return a.identityPath != ""
	default:
		return false
	}
}

func (a *app) close() error {
	if a.cache == nil {
		return nil
	}
	err := a.cache.Close()
	a.cache = nil
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
