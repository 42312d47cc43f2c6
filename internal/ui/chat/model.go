// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	core "github.com/jeranaias/carechat/internal/chat"
	"github.com/jeranaias/carechat/internal/identity"
	"github.com/jeranaias/carechat/internal/model"
	"github.com/jeranaias/carechat/internal/quota"
	"github.com/jeranaias/carechat/internal/registration"
	"github.com/jeranaias/carechat/internal/topics"
	"github.com/jeranaias/carechat/internal/ui/styles"
)

// eventBuffer sizes the session event channel. Update drains it, so it
// only has to absorb bursts between frames.
const eventBuffer = 256

// chromeLines is the number of lines outside the viewport: header, status
// bar and input.
const chromeLines = 3

// =============================================================================
// DEPENDENCIES
// =============================================================================

// TopicsFetcher loads the topic index.
type TopicsFetcher interface {
	Fetch(ctx context.Context) (topics.Index, error)
}

// Registrar registers a profile and updates the identity cache.
type Registrar interface {
	Register(ctx context.Context, p registration.Profile) (identity.Identity, error)
}

// Config wires the view to the rest of the application.
type Config struct {
	Session   *core.Session
	Identity  identity.Reader
	Topics    TopicsFetcher
	Registrar Registrar
	ServerURL string
	Theme     *styles.Theme
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// entry is one transcript line: a conversation message or a local note
// that never enters the session log.
type entry struct {
	message *model.Message
	note    string
	isError bool
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	ctx context.Context
	cfg Config

	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int

	// Mirrors of session state, updated only from events
	state    core.State
	entries  []entry
	usage    quota.UsageState
	hasUsage bool

	events     <-chan core.Event
	stopEvents func()

	// UI Components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	keyMap   KeyMap

	statusMsg string
	showHelp  bool
	quitting  bool
}

// New creates a chat view bound to cfg.Session. Call Close when the
// program exits.
func New(ctx context.Context, cfg Config) Model {
	theme := cfg.Theme
	if theme == nil {
		theme = styles.NewTheme()
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.PromptStyle = theme.InputPrompt
	ti.Placeholder = "Type a message, or /help"
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = theme.StatusBusy

	events, stop := cfg.Session.Events(eventBuffer)

	m := Model{
		ctx:        ctx,
		cfg:        cfg,
		theme:      theme,
		width:      80,
		height:     20 + chromeLines,
		state:      cfg.Session.State(),
		events:     events,
		stopEvents: stop,
		viewport:   vp,
		input:      ti,
		spinner:    sp,
		help:       help.New(),
		keyMap:     DefaultKeyMap(),
	}
	for _, msg := range cfg.Session.Snapshot() {
		m.entries = append(m.entries, entry{message: &msg})
	}
	if _, ok := cfg.Identity.Current(); !ok {
		m.addNote("Not registered. Use /register EMAIL AGE [SEX] to start.", false)
	}
	m.refresh()
	return m
}

// Init starts the cursor blink and the event loop.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, core.WaitForEvent(m.events))
}

// Close stops event delivery to the view.
func (m Model) Close() {
	if m.stopEvents != nil {
		m.stopEvents()
	}
}

// State returns the last session state the view observed.
func (m Model) State() core.State {
	return m.state
}

func (m *Model) addNote(text string, isError bool) {
	m.entries = append(m.entries, entry{note: text, isError: isError})
}

// resize lays out the components for a width x height terminal.
func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.theme.SetSize(width, height)

	m.viewport.Width = width
	m.viewport.Height = max(height-chromeLines, 1)
	m.input.Width = max(width-len(m.input.Prompt)-1, 10)
	m.help.Width = width
}

// refresh re-renders the transcript into the viewport and follows the
// bottom.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderEntries())
	m.viewport.GotoBottom()
}

// =============================================================================
// COMMANDS
// =============================================================================

// topicsMsg carries the result of a /topics fetch.
type topicsMsg struct {
	index topics.Index
	err   error
}

// registeredMsg carries the result of a /register call.
type registeredMsg struct {
	id  identity.Identity
	err error
}

func fetchTopicsCmd(ctx context.Context, f TopicsFetcher) tea.Cmd {
	return func() tea.Msg {
		index, err := f.Fetch(ctx)
		return topicsMsg{index: index, err: err}
	}
}

func registerCmd(ctx context.Context, r Registrar, p registration.Profile) tea.Cmd {
	return func() tea.Msg {
		id, err := r.Register(ctx, p)
		return registeredMsg{id: id, err: err}
	}
}
