package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/npezzotti/topichat/internal/command"
	"github.com/npezzotti/topichat/internal/feed"
	"github.com/npezzotti/topichat/internal/types"
)

type (
	feedChangedMsg struct{}
	openedMsg      struct{ err error }
	statusMsg      string
	errMsg         struct{ err error }
)

// chrome is the number of rows outside the message pane: header, notice,
// suggestions, input and status.
const chrome = 5

type model struct {
	ctx      context.Context
	feed     *feed.Feed
	commands *command.Dispatcher
	vp       *lineViewport
	input    textinput.Model
	room     types.RoomAccess
	user     types.User

	suggestions []string
	picked      int
	status      string
	opened      bool
}

func newModel(ctx context.Context, f *feed.Feed, d *command.Dispatcher, vp *lineViewport, room types.RoomAccess, user types.User) model {
	ti := textinput.New()
	ti.Placeholder = fmt.Sprintf("Message #%s (try %s)", room.Room.Name, strings.Join(d.Keywords(), ", "))
	ti.CharLimit = 4000
	ti.Focus()

	return model{
		ctx:      ctx,
		feed:     f,
		commands: d,
		vp:       vp,
		input:    ti,
		room:     room,
		user:     user,
		status:   "loading...",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.open)
}

func (m model) open() tea.Msg {
	return openedMsg{err: m.feed.Open(m.ctx)}
}

func (m model) send(text string) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.feed.Send(m.ctx, text, nil); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m model) loadOlder() tea.Msg {
	n, err := m.feed.LoadOlder(m.ctx)
	if errors.Is(err, feed.ErrNoMoreHistory) {
		return statusMsg("beginning of the room")
	}
	if err != nil {
		return errMsg{err}
	}
	return statusMsg(fmt.Sprintf("loaded %d older messages", n))
}

func (m model) react(kind types.ReactionKind) tea.Cmd {
	target, ok := lastStored(m.feed.Messages())
	if !ok {
		return nil
	}
	return func() tea.Msg {
		var err error
		if kind == types.ReactionLike {
			err = m.feed.ToggleLike(m.ctx, target.Id)
		} else {
			err = m.feed.ToggleDislike(m.ctx, target.Id)
		}
		if err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func lastStored(msgs []types.Message) (types.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].Local && !msgs[i].IsDeleted {
			return msgs[i], true
		}
	}
	return types.Message{}, false
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.input.Width = msg.Width - 4
		m.vp.SetSize(msg.Width, msg.Height-chrome)
		return m, nil

	case openedMsg:
		if msg.err != nil {
			m.status = "offline: " + msg.err.Error()
		} else {
			m.opened = true
			m.status = fmt.Sprintf("signed in as %s", m.user.Username)
		}
		return m, nil

	case feedChangedMsg:
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case errMsg:
		m.status = "error: " + msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.suggestions = nil
			return m, m.send(text)
		case "tab":
			if len(m.suggestions) > 0 {
				m.input.SetValue(command.Complete(m.suggestions[m.picked]))
				m.input.CursorEnd()
				m.suggestions = nil
			}
			return m, nil
		case "up":
			if len(m.suggestions) > 0 {
				m.picked = (m.picked + len(m.suggestions) - 1) % len(m.suggestions)
			} else {
				m.vp.ScrollBy(-1)
			}
			return m, nil
		case "down":
			if len(m.suggestions) > 0 {
				m.picked = (m.picked + 1) % len(m.suggestions)
			} else {
				m.vp.ScrollBy(1)
			}
			return m, nil
		case "pgup":
			if m.vp.AtTop() && m.feed.HasMore() {
				return m, m.loadOlder
			}
			m.vp.ScrollBy(-m.vp.Height())
			return m, nil
		case "pgdown":
			m.vp.ScrollBy(m.vp.Height())
			return m, nil
		case "ctrl+n":
			m.feed.RevealNew()
			return m, nil
		case "ctrl+l":
			return m, m.react(types.ReactionLike)
		case "ctrl+d":
			return m, m.react(types.ReactionDislike)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.suggestions = m.commands.Suggest(m.input.Value())
	if m.picked >= len(m.suggestions) {
		m.picked = 0
	}
	return m, cmd
}

func (m model) View() string {
	title := "#" + m.room.Room.Name
	if m.room.Room.Interest != "" {
		title += " · " + m.room.Room.Interest
	}
	if m.room.IsAdmin {
		title += " · admin"
	}

	notice := ""
	switch {
	case m.opened && !m.feed.Live():
		notice = noticeStyle.Render("live updates stopped, restart to reconnect")
	case m.feed.NewMessageNotice():
		notice = noticeStyle.Render("new messages below, ctrl+n to jump")
	}

	var picks []string
	for i, s := range m.suggestions {
		if i == m.picked {
			picks = append(picks, pickedStyle.Render(s))
		} else {
			picks = append(picks, s)
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(title),
		m.vp.View(),
		notice,
		strings.Join(picks, "  "),
		m.input.View(),
		statusStyle.Render(m.status+"  ·  pgup older · ctrl+l like · ctrl+d dislike · esc quit"),
	)
}
