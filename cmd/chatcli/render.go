package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/npezzotti/topichat/internal/command"
	"github.com/npezzotti/topichat/internal/types"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	metaStyle    = lipgloss.NewStyle().Faint(true)
	nameStyle    = lipgloss.NewStyle().Bold(true)
	curatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	commandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Italic(true)
	localStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	quoteStyle   = lipgloss.NewStyle().Faint(true).Italic(true)
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("220")).Padding(0, 1)
	pickedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	statusStyle  = lipgloss.NewStyle().Faint(true)
)

func styleFor(s command.Style) lipgloss.Style {
	switch s {
	case command.StyleCurator:
		return curatorStyle
	case command.StyleCommand:
		return commandStyle
	case command.StyleLocal:
		return localStyle
	default:
		return lipgloss.NewStyle()
	}
}

// messageRenderer draws one message as a block of wrapped rows.
func messageRenderer(d *command.Dispatcher) func(types.Message, int) string {
	return func(m types.Message, width int) string {
		var b strings.Builder

		if m.Parent != nil {
			quote := fmt.Sprintf("↳ %s: %s", m.Parent.Username, m.Parent.Content)
			b.WriteString(quoteStyle.Width(width).Render(quote))
			b.WriteString("\n")
		}

		name := m.Username
		if m.IsCurator() {
			name = fmt.Sprintf("%s (%s)", m.Username, m.CuratorKind)
		}
		head := metaStyle.Render(m.CreatedAt.Local().Format("15:04")) + " " + nameStyle.Render(name)
		if counts := reactionLine(m); counts != "" {
			head += " " + metaStyle.Render(counts)
		}
		b.WriteString(head)
		b.WriteString("\n")
		b.WriteString(styleFor(d.Style(m)).Width(width).Render(m.Content))
		return b.String()
	}
}

func reactionLine(m types.Message) string {
	if m.Local {
		return ""
	}
	parts := []string{}
	like, dislike := "+", "-"
	if m.ViewerHasLiked {
		like = "[+]"
	}
	if m.ViewerHasDisliked {
		dislike = "[-]"
	}
	if m.LikeCount > 0 || m.ViewerHasLiked {
		parts = append(parts, fmt.Sprintf("%s%d", like, m.LikeCount))
	}
	if m.DislikeCount > 0 || m.ViewerHasDisliked {
		parts = append(parts, fmt.Sprintf("%s%d", dislike, m.DislikeCount))
	}
	if m.CommentCount > 0 {
		parts = append(parts, fmt.Sprintf("%d comments", m.CommentCount))
	}
	return strings.Join(parts, " ")
}
