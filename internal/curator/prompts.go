package curator

import (
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/topichat/internal/database"
	"github.com/npezzotti/topichat/internal/news"
)

const (
	defaultIdleTopic = "general discussion"
	defaultQATopic   = "general"

	idleSystemBase = "You are the curator of a group chat about %s. " +
		"Write one short, friendly message that restarts the conversation. " +
		"Ask an open question. Do not greet anyone by name."

	newsSystemInstruction = "You summarize news articles for a group chat. " +
		"Write two or three sentences, then one question inviting discussion. " +
		"Do not include the link."

	summaryTitle = "오늘의 대화 요약"

	summarySystemBase = "You summarize a day of conversation in a group chat about %s. " +
		"Write three to five bullet points of one or two sentences each. " +
		"Do not name the participants."

	qaSystemTemplate = "당신은 %s 주제의 채팅방을 담당하는 전문 AI 큐레이터입니다. " +
		"사용자의 질문에 대해 명확하고 간결하게 한국어로 답변해주세요."
)

func topic(room database.Room, fallback string) string {
	if t := strings.TrimSpace(room.Interest); t != "" {
		return t
	}
	return fallback
}

func idleSystemInstruction(room database.Room) string {
	if room.Persona != "" {
		return room.Persona
	}
	return fmt.Sprintf(idleSystemBase, topic(room, defaultIdleTopic))
}

func idlePrompt(room database.Room, idleFor time.Duration) string {
	return fmt.Sprintf(
		"The room %q about %s has been quiet for %s. Start a new conversation.",
		room.Name,
		topic(room, defaultIdleTopic),
		idleFor.Truncate(time.Minute),
	)
}

func newsPrompt(interest string, a *news.Article) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\nTitle: %s\n", interest, a.Title)
	if a.Description != "" {
		fmt.Fprintf(&sb, "Excerpt: %s\n", a.Description)
	}
	sb.WriteString("Summarize this article for the room.")
	return sb.String()
}

func newsContent(summary string, a *news.Article) string {
	return fmt.Sprintf("%s\n\n%s\n%s", a.Title, strings.TrimSpace(summary), a.URL)
}

func qaSystemInstruction(room database.Room) string {
	if room.Persona != "" {
		return room.Persona
	}
	return fmt.Sprintf(qaSystemTemplate, topic(room, defaultQATopic))
}

func summarySystemInstruction(room database.Room) string {
	return fmt.Sprintf(summarySystemBase, topic(room, defaultIdleTopic))
}

func summaryPrompt(contents []string) string {
	var sb strings.Builder
	sb.WriteString("Summarize the main topics of this conversation.\n\n---\n")
	for _, c := range contents {
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	return sb.String()
}
