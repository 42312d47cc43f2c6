// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-oriented chat for the carechat CLI.
//
// USABILITY: Line editing and history on terminals, plain stdin lines
// when piped so conversations can be scripted.
//
// Command: chat
// Short:   Chat with the service one line at a time
//
// Examples:
//   carechat chat                          Interactive chat
//   printf 'hello\n/usage\n' | carechat chat
//
// Flags:
//   --no-watch          Do not follow registrations made by other processes
//
// Interactive Commands (during chat):
//   /help               Show available commands
//   /topics             Show the topic index
//   /usage              Show the message quota
//   /register E A [S]   Register without leaving the chat
//   /whoami             Show the registered email
//   /cancel             Abandon the reply being waited for
//   /clear              Clear the screen
//   /quit, /exit, /q    Exit chat
//   Ctrl+C              Cancel the pending reply, or exit at the prompt
//   Ctrl+D              Exit chat
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"github.com/peterh/liner"

	"github.com/jeranaias/carechat/internal/chat"
	"github.com/jeranaias/carechat/internal/config"
	"github.com/jeranaias/carechat/internal/identity"
	"github.com/jeranaias/carechat/internal/model"
	"github.com/jeranaias/carechat/internal/util"
)

// =============================================================================
// INPUT
// =============================================================================

// errInterrupted is returned by ReadLine when Ctrl+C aborts the prompt.
var errInterrupted = errors.New("interrupted")

// lineReader yields one line of user input per call. It returns io.EOF at
// end of input.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// linerReader provides input history and line editing on terminals.
// USABILITY: Supports arrow keys for history navigation and line editing.
type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader() *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	r := &linerReader{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *linerReader) ReadLine(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errInterrupted
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with 0600 permissions and restores the terminal.
func (r *linerReader) Close() error {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	return r.line.Close()
}

// scanReader reads newline-separated input without prompting.
type scanReader struct {
	scanner *bufio.Scanner
}

func newScanReader(in io.Reader) *scanReader {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &scanReader{scanner: scanner}
}

func (r *scanReader) ReadLine(string) (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *scanReader) Close() error { return nil }

// =============================================================================
// TRANSCRIPT
// =============================================================================

// transcript prints session events as they are delivered. Terminals do not
// echo USER messages since the user just typed them.
type transcript struct {
	mu       sync.Mutex
	w        io.Writer
	s        *styles
	width    int
	echoUser bool
}

func (t *transcript) observe(ev chat.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev := ev.(type) {
	case chat.EventAppended:
		if ev.Message.IsUser() && !t.echoUser {
			return
		}
		t.printMessageLocked(ev.Message)
	case chat.EventDropped:
		fmt.Fprintf(t.w, "%s %q (%v)\n",
			t.s.muted.Render("not sent:"), util.TruncateRunes(ev.Text, 60), ev.Reason)
	case chat.EventStateChanged:
		if ev.Unblocked() {
			fmt.Fprintln(t.w, t.s.muted.Render(chat.UnblockedNotice))
		}
	}
}

func (t *transcript) printMessageLocked(msg model.Message) {
	indent := strings.Repeat(" ", 2)

	fmt.Fprintln(t.w, t.s.label(msg))
	for _, raw := range msg.Lines() {
		for _, line := range strings.Split(WrapText(raw, t.width-len(indent)), "\n") {
			if msg.IsSystem() {
				line = t.s.warn.Render(line)
			}
			fmt.Fprintln(t.w, indent+line)
		}
	}
}

// notice prints a client-side hint that is not part of the conversation.
func (t *transcript) notice(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, t.s.muted.Render(fmt.Sprintf(format, args...)))
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

func cmdChat(ctx context.Context, a *app, args []string) error {
	p := NewArgParser(args, "no-watch")
	if err := a.openIdentity(ctx); err != nil {
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	interactive := isTerminal(a.io.In) && isTerminal(a.io.Out)
	session := chat.NewSession(a.gw, a.cache, a.logger)
	defer session.Close()

	tr := &transcript{
		w:        a.io.Out,
		s:        a.out,
		width:    terminalWidth(a.io.Out),
		echoUser: !interactive,
	}
	unsubscribe := session.Subscribe(tr.observe)
	defer unsubscribe()

	if a.watchable() && !p.BoolFlag("no-watch") {
		go a.watchIdentity(ctx, session)
	}

	// First Ctrl+C cancels the pending reply; with nothing pending it ends
	// the chat.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigChan:
				if session.Cancel() {
					tr.notice("[Cancelled]")
					continue
				}
				stop()
				return
			}
		}
	}()

	var input lineReader
	if interactive {
		input = newLinerReader()
	} else {
		input = newScanReader(a.io.In)
	}
	defer input.Close()

	r := &repl{app: a, session: session, tr: tr, input: input, interactive: interactive}
	if interactive {
		r.greet()
	}
	return r.run(ctx)
}

// watchIdentity restores the identity whenever the persisted slot changes
// and unblocks the session, so registering from another terminal lifts a
// quota block.
func (a *app) watchIdentity(ctx context.Context, session *chat.Session) {
	if err := os.MkdirAll(filepath.Dir(a.identityPath), 0700); err != nil {
		a.logger.Debug("identity watch disabled", "error", err)
		return
	}
	w, err := identity.NewWatcher(a.identityPath, identity.DefaultWatchDebounce, a.logger)
	if err != nil {
		a.logger.Debug("identity watch disabled", "error", err)
		return
	}
	defer w.Close()

	w.Run(ctx, func() {
		if err := a.cache.Restore(ctx); err != nil {
			a.logger.Warn("identity reload failed", "error", err)
			return
		}
		if _, ok := a.cache.Current(); ok && session.Unblock() {
			a.logger.Info("identity changed, session unblocked")
		}
	})
}

// =============================================================================
// REPL
// =============================================================================

type repl struct {
	app         *app
	session     *chat.Session
	tr          *transcript
	input       lineReader
	interactive bool

	// refused is the first send refused in non-interactive mode, returned
	// at end of input so scripts see a failing exit code.
	refused error
}

func (r *repl) greet() {
	a := r.app
	fmt.Fprintf(a.io.Out, "%s connected to %s\n", a.out.prompt.Render("carechat"), a.gw.BaseURL())
	if id, ok := a.cache.Current(); ok {
		r.tr.notice("Signed in as %s. Type /help for commands.", util.MaskEmail(id.Email))
	} else {
		r.tr.notice("Not registered. Use /register EMAIL AGE [SEX] to start.")
	}
}

func (r *repl) prompt() string {
	if !r.interactive {
		return ""
	}
	if r.session.State() == chat.StateBlocked {
		return "(blocked)> "
	}
	return "> "
}

func (r *repl) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := r.input.ReadLine(r.prompt())
		switch {
		case errors.Is(err, errInterrupted), errors.Is(err, io.EOF):
			if r.interactive {
				fmt.Fprintln(r.app.io.Out)
			}
			return r.refused
		case err != nil:
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.slash(ctx, line); quit {
				return r.refused
			}
			continue
		}
		r.send(ctx, line)
	}
}

// send submits one message and waits for its exchange to finish so the
// reply prints before the next prompt.
func (r *repl) send(ctx context.Context, text string) {
	if err := r.session.Send(ctx, text); err != nil {
		r.refuse(err)
		return
	}

	done := make(chan struct{})
	go func() {
		r.session.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.session.Cancel()
		<-done
	}
}

func (r *repl) refuse(err error) {
	switch {
	case errors.Is(err, chat.ErrBlocked):
		r.tr.notice("Free message limit reached. Register again with /register or upgrade to continue.")
	case errors.Is(err, chat.ErrNotRegistered):
		r.tr.notice("Not registered. Use /register EMAIL AGE [SEX] first.")
	default:
		r.tr.notice("Message not sent: %v", err)
	}
	if r.refused == nil && !r.interactive {
		if errors.Is(err, chat.ErrNotRegistered) {
			err = errNotRegistered
		}
		r.refused = err
	}
}

// slash runs a REPL command and reports whether the chat should end.
func (r *repl) slash(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	a := r.app

	switch cmd {
	case "/quit", "/exit", "/q":
		return true

	case "/help", "/h", "/?":
		r.printHelp()

	case "/cancel":
		if r.session.Cancel() {
			r.tr.notice("[Cancelled]")
		} else {
			r.tr.notice("Nothing to cancel.")
		}

	case "/topics":
		index, err := a.topics().Fetch(ctx)
		if err != nil {
			r.tr.notice("Could not load topics: %v", err)
			return false
		}
		r.tr.mu.Lock()
		printTopics(a.io.Out, a.out, index, r.tr.width)
		r.tr.mu.Unlock()

	case "/usage":
		usage, ok := r.session.Usage()
		if !ok {
			r.tr.notice("No usage reported yet.")
			return false
		}
		r.tr.notice("%s", usage.Describe())

	case "/register":
		r.register(ctx, fields[1:])

	case "/whoami":
		if id, ok := a.cache.Current(); ok {
			r.tr.notice("%s", util.MaskEmail(id.Email))
		} else {
			r.tr.notice("Not registered.")
		}

	case "/clear":
		if r.interactive {
			termenv.NewOutput(a.io.Out).ClearScreen()
		}

	default:
		if suggestion := suggestSlash(cmd); suggestion != "" {
			r.tr.notice("Unknown command %s. Did you mean %s?", cmd, suggestion)
		} else {
			r.tr.notice("Unknown command %s. Type /help for commands.", cmd)
		}
	}
	return false
}

func (r *repl) register(ctx context.Context, args []string) {
	profile, err := parseProfile(NewArgParser(args), 0)
	if err != nil {
		r.tr.notice("usage: /register EMAIL AGE [SEX]")
		return
	}
	mgr, err := r.app.registration(ctx)
	if err != nil {
		r.tr.notice("%v", err)
		return
	}
	id, err := mgr.Register(ctx, profile)
	if err != nil {
		r.tr.notice("%v", err)
		return
	}

	r.tr.mu.Lock()
	printRegistered(r.app.io.Out, r.app.out, id)
	r.tr.mu.Unlock()
	r.session.Unblock()
}

func (r *repl) printHelp() {
	r.tr.mu.Lock()
	defer r.tr.mu.Unlock()
	w, s := r.app.io.Out, r.app.out
	fmt.Fprintln(w, s.system.Render("Chat commands:"))
	for _, row := range [][2]string{
		{"/topics", "Show the topic index"},
		{"/usage", "Show your message quota"},
		{"/register EMAIL AGE [SEX]", "Register without leaving the chat"},
		{"/whoami", "Show the registered email"},
		{"/cancel", "Abandon the pending reply"},
		{"/clear", "Clear the screen"},
		{"/quit", "Leave"},
	} {
		fmt.Fprintf(w, "  %-28s %s\n", row[0], s.muted.Render(row[1]))
	}
}
