package ui

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Warproom/cli/internal/document"
	"github.com/BioHazard786/Warproom/cli/internal/negotiation"
	"github.com/BioHazard786/Warproom/cli/internal/room"
	"github.com/BioHazard786/Warproom/internal/protocol"
)

const (
	maxCodeLines  = 20
	maxLogLines   = 6
	defaultEditor = "vi"
)

// Controller is the part of a room session the UI drives.
type Controller interface {
	Accept(correlationID string) error
	Reject(correlationID string) error
	EditCode(code string) error
	EditLanguage(lang document.Language) error
	AddTestVector(v document.TestVector) error
	ClearTestVectors() error
	RunCode() error
	Submit(problemID string) error
	SetMedia(want negotiation.MediaState) error
	Republish() error
	Leave() error
	Snapshot() room.Snapshot
	Done() <-chan struct{}
}

// Feed hands session snapshots to the UI, keeping only the newest.
type Feed struct {
	ch chan room.Snapshot
}

func NewFeed() *Feed {
	return &Feed{ch: make(chan room.Snapshot, 1)}
}

// Notify never blocks. It is meant for room.Options.Notify, which has a
// single caller.
func (f *Feed) Notify(s room.Snapshot) {
	for {
		select {
		case f.ch <- s:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

type snapshotMsg room.Snapshot

type sessionDoneMsg struct{}

type editorDoneMsg struct {
	code string
	err  error
}

type ModelOptions struct {
	Controller  Controller
	Feed        *Feed
	Environment *TerminalEnvironment
	Media       negotiation.MediaState

	// RoomLink builds the shareable link for a room ID.
	RoomLink func(roomID string) string

	// Editor is the command used by 'edit'. Defaults to $EDITOR, then vi.
	Editor string
}

// RoomModel is the Bubble Tea model for one participant's room.
type RoomModel struct {
	ctrl     Controller
	feed     *Feed
	env      *TerminalEnvironment
	roomLink func(string) string
	editor   string

	snap     room.Snapshot
	media    negotiation.MediaState
	input    textinput.Model
	spinner  spinner.Model
	status   string
	showHelp bool
	done     bool

	width  int
	height int
}

func NewRoomModel(opts ModelOptions) *RoomModel {
	ti := textinput.New()
	ti.Prompt = PromptStyle.Render("› ")
	ti.Placeholder = "type a command, 'help' for the list"
	ti.CharLimit = 4096
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	editor := opts.Editor
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = defaultEditor
	}
	env := opts.Environment
	if env == nil {
		env = NewTerminalEnvironment()
	}
	roomLink := opts.RoomLink
	if roomLink == nil {
		roomLink = func(id string) string { return id }
	}

	return &RoomModel{
		ctrl:     opts.Controller,
		feed:     opts.Feed,
		env:      env,
		roomLink: roomLink,
		editor:   editor,
		snap:     opts.Controller.Snapshot(),
		media:    opts.Media,
		input:    ti,
		spinner:  s,
	}
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForSnapshot(),
	)
}

// waitForSnapshot returns a command that listens for session updates
func (m *RoomModel) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-m.feed.ch:
			return snapshotMsg(s)
		case <-m.ctrl.Done():
			return sessionDoneMsg{}
		}
	}
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if err := m.ctrl.Leave(); errors.Is(err, room.ErrSessionOver) {
				return m, tea.Quit
			}
			return m, nil
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.Reset()
			return m, m.execute(line)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(10, msg.Width-6)
		m.env.Resize(msg.Width, msg.Height)
		return m, nil

	case tea.FocusMsg:
		m.env.Focus()
		return m, nil

	case tea.BlurMsg:
		m.env.Blur()
		return m, nil

	case snapshotMsg:
		m.snap = room.Snapshot(msg)
		return m, m.waitForSnapshot()

	case sessionDoneMsg:
		m.snap = m.ctrl.Snapshot()
		m.done = true
		return m, tea.Quit

	case editorDoneMsg:
		if msg.err != nil {
			m.setStatus(fmt.Errorf("editor: %w", msg.err))
			return m, nil
		}
		m.setStatus(m.ctrl.EditCode(msg.code))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// Final returns the last snapshot the model saw.
func (m *RoomModel) Final() room.Snapshot { return m.snap }

func (m *RoomModel) execute(line string) tea.Cmd {
	c, err := ParseCommand(line)
	if errors.Is(err, ErrEmptyCommand) {
		return nil
	}
	if err != nil {
		m.setStatus(err)
		return nil
	}

	switch c.Kind {
	case CmdHelp:
		m.showHelp = !m.showHelp
		return nil
	case CmdAccept:
		err = m.ctrl.Accept(c.Arg)
	case CmdReject:
		err = m.ctrl.Reject(c.Arg)
	case CmdCode:
		err = m.ctrl.EditCode(c.Arg)
	case CmdAppend:
		code := m.snap.Document.Code
		if code != "" && !strings.HasSuffix(code, "\n") {
			code += "\n"
		}
		err = m.ctrl.EditCode(code + c.Arg)
	case CmdEdit:
		return m.openEditor()
	case CmdLanguage:
		err = m.ctrl.EditLanguage(document.Language(c.Arg))
	case CmdAddVector:
		err = m.ctrl.AddTestVector(c.Vector)
	case CmdClearVectors:
		err = m.ctrl.ClearTestVectors()
	case CmdRun:
		err = m.ctrl.RunCode()
	case CmdSubmit:
		err = m.ctrl.Submit(c.Arg)
	case CmdAudio:
		m.media.Audio = c.On
		err = m.ctrl.SetMedia(m.media)
	case CmdVideo:
		m.media.Video = c.On
		err = m.ctrl.SetMedia(m.media)
	case CmdRepublish:
		err = m.ctrl.Republish()
	case CmdLeave:
		err = m.ctrl.Leave()
	}
	if errors.Is(err, room.ErrSessionOver) {
		return tea.Quit
	}
	m.setStatus(err)
	return nil
}

func (m *RoomModel) setStatus(err error) {
	if err == nil {
		m.status = ""
		return
	}
	m.status = err.Error()
}

// openEditor suspends the UI while the code is edited in a temp file.
func (m *RoomModel) openEditor() tea.Cmd {
	f, err := os.CreateTemp("", "warproom-*"+extension(m.snap.Document.Language))
	if err != nil {
		m.setStatus(err)
		return nil
	}
	name := f.Name()
	_, err = f.WriteString(m.snap.Document.Code)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(name)
		m.setStatus(err)
		return nil
	}

	args := append(strings.Fields(m.editor), name)
	c := exec.Command(args[0], args[1:]...)
	return tea.ExecProcess(c, func(err error) tea.Msg {
		defer os.Remove(name)
		if err != nil {
			return editorDoneMsg{err: err}
		}
		b, err := os.ReadFile(name)
		return editorDoneMsg{code: string(b), err: err}
	})
}

func extension(lang document.Language) string {
	switch lang {
	case document.Java:
		return ".java"
	case document.CPP:
		return ".cpp"
	case document.JavaScript:
		return ".js"
	}
	return ".py"
}

func (m *RoomModel) View() string {
	var b strings.Builder

	title := "Candidate"
	icon := IconPeer
	if m.snap.Role == protocol.RoleHost {
		title, icon = "Host", IconHost
	}
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s Warproom - %s", icon, title)))
	b.WriteString("\n")

	switch m.snap.Phase {
	case room.PhaseConnecting:
		b.WriteString(fmt.Sprintf("%s Connecting to relay...", m.spinner.View()))
	case room.PhaseAwaitingCandidate:
		b.WriteString(m.viewAwaitingCandidate())
	case room.PhaseAwaitingApproval:
		b.WriteString(fmt.Sprintf("%s %s Waiting for the host to admit you to %s...",
			m.spinner.View(), IconWaiting, BoldStyle.Render(m.snap.RoomID)))
	case room.PhaseActive:
		b.WriteString(m.viewActive())
	case room.PhaseEnded:
		b.WriteString(m.viewEnded())
	}
	b.WriteString("\n\n")

	b.WriteString(m.viewLog())
	if m.showHelp {
		b.WriteString("\n" + InfoBoxStyle.Render(SubtitleStyle.Render(IconInfo+" Commands")+"\n\n"+HelpText) + "\n")
	}
	if m.status != "" {
		b.WriteString("\n" + ErrorStyle.Render(fmt.Sprintf("%s %s", IconError, m.status)))
	}
	if !m.done {
		b.WriteString("\n" + m.input.View())
	}
	b.WriteString("\n" + FooterStyle.Render("enter: run command • help: commands • ctrl+c: leave"))

	return ContainerStyle.Render(b.String())
}

func (m *RoomModel) viewAwaitingCandidate() string {
	var b strings.Builder
	if m.snap.RoomID != "" {
		b.WriteString(NewRoomInfo(m.snap.RoomID, m.roomLink(m.snap.RoomID)).View())
		b.WriteString("\n\n")
	}
	if len(m.snap.Pending) == 0 {
		b.WriteString(fmt.Sprintf("%s %s Waiting for a candidate to join...", m.spinner.View(), IconWaiting))
		return b.String()
	}
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Join requests (%d)", len(m.snap.Pending))))
	for _, p := range m.snap.Pending {
		name := p.Profile.Name
		if name == "" {
			name = "Anonymous"
		}
		b.WriteString(fmt.Sprintf("\n  %s %s  %s", IconPeer, name,
			MutedStyle.Render(fmt.Sprintf("accept %s | reject %s", p.CorrelationID, p.CorrelationID))))
	}
	return b.String()
}

func (m *RoomModel) viewActive() string {
	var b strings.Builder

	peer := "peer"
	if m.snap.Peer != nil && m.snap.Peer.Name != "" {
		peer = m.snap.Peer.Name
	}
	b.WriteString(fmt.Sprintf("%s %s  %s %s  %s\n",
		IconRoom, BoldStyle.Render(m.snap.RoomID),
		IconConnect, peer,
		StatusStyle.Render(m.snap.Negotiation.String()),
	))
	b.WriteString(MutedStyle.Render(fmt.Sprintf("%s%s you: %s   %s: %s",
		IconAudio, IconVideo, mediaText(m.snap.LocalMedia), peer, mediaText(m.snap.RemoteMedia))))
	if m.snap.Role == protocol.RoleCandidate && m.snap.Violations > 0 {
		b.WriteString("  " + WarningStyle.Render(fmt.Sprintf("%s %d proctoring warnings", IconProctor, m.snap.Violations)))
	}
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s\n", IconCode, LanguageStyle.Render(string(m.snap.Document.Language))))
	b.WriteString(CodeView(m.snap.Document.Code, maxCodeLines))
	b.WriteString("\n\n")
	b.WriteString(VectorTableView(m.snap.Document.Vectors))

	if m.snap.Running {
		b.WriteString(fmt.Sprintf("\n%s %s Running...", m.spinner.View(), IconRun))
	}
	if m.snap.LastRun != nil {
		b.WriteString("\n" + RunResultView(*m.snap.LastRun))
	}
	if m.snap.LastSubmit != nil {
		b.WriteString("\n" + SubmissionView(*m.snap.LastSubmit))
	}
	return b.String()
}

// viewEnded boxes the notice that ended the session, in red when it was a
// failure such as a rejected join or a lost relay.
func (m *RoomModel) viewEnded() string {
	reason := "Session ended."
	level := room.LevelInfo
	if n := len(m.snap.Log); n > 0 {
		reason, level = m.snap.Log[n-1].Text, m.snap.Log[n-1].Level
	}
	if level == room.LevelError {
		return ErrorBoxStyle.Render(fmt.Sprintf("%s %s", IconError, reason))
	}
	return BoxStyle.Render(fmt.Sprintf("%s Session ended\n%s", IconComplete, SubtitleStyle.Render(reason)))
}

func (m *RoomModel) viewLog() string {
	log := m.snap.Log
	if len(log) > maxLogLines {
		log = log[len(log)-maxLogLines:]
	}
	lines := make([]string, 0, len(log))
	for _, n := range log {
		text := n.Text
		switch n.Level {
		case room.LevelWarning:
			text = WarningStyle.Render(text)
		case room.LevelError:
			text = ErrorStyle.Render(text)
		}
		lines = append(lines, NoticeTimeStyle.Render(n.At.Format("15:04:05"))+" "+text)
	}
	return strings.Join(lines, "\n")
}

// CodeView renders code with line numbers, showing at most limit lines.
func CodeView(code string, limit int) string {
	if code == "" {
		return CodeStyle.Render(MutedStyle.Render("(empty)"))
	}
	lines := strings.Split(strings.TrimSuffix(code, "\n"), "\n")
	more := 0
	if len(lines) > limit {
		more = len(lines) - limit
		lines = lines[:limit]
	}
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(LineNumberStyle.Render(fmt.Sprintf("%d", i+1)) + " " + l)
	}
	if more > 0 {
		b.WriteString("\n" + MutedStyle.Render(fmt.Sprintf("… %d more lines, 'edit' to see all", more)))
	}
	return CodeStyle.Render(b.String())
}

func mediaText(m negotiation.MediaState) string {
	switch {
	case m.Audio && m.Video:
		return "audio+video"
	case m.Audio:
		return "audio"
	case m.Video:
		return "video"
	}
	return "off"
}
