package main

import (
	"strings"
	"sync"

	"github.com/npezzotti/topichat/internal/feed"
	"github.com/npezzotti/topichat/internal/types"
)

// lineViewport lays messages out as terminal rows. It is written to by the
// feed and read by the bubbletea view, so every method locks.
type lineViewport struct {
	mu     sync.Mutex
	width  int
	height int
	top    int
	lines  []string
	msgs   []types.Message
	render func(msg types.Message, width int) string
}

var _ feed.Viewport = (*lineViewport)(nil)

func newLineViewport(render func(types.Message, int) string) *lineViewport {
	return &lineViewport{width: 80, height: 20, render: render}
}

func (v *lineViewport) Layout(msgs []types.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.msgs = msgs
	v.relayout()
}

func (v *lineViewport) relayout() {
	v.lines = v.lines[:0]
	for _, m := range v.msgs {
		v.lines = append(v.lines, strings.Split(v.render(m, v.width), "\n")...)
	}
	v.top = v.clamp(v.top)
}

func (v *lineViewport) clamp(top int) int {
	return max(0, min(top, len(v.lines)-v.height))
}

func (v *lineViewport) Metrics() feed.Metrics {
	v.mu.Lock()
	defer v.mu.Unlock()
	return feed.Metrics{ScrollTop: v.top, ScrollHeight: len(v.lines), ClientHeight: v.height}
}

func (v *lineViewport) ScrollTo(top int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.top = v.clamp(top)
}

func (v *lineViewport) ScrollBy(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.top = v.clamp(v.top + n)
}

func (v *lineViewport) AtTop() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.top == 0
}

func (v *lineViewport) Height() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.height
}

func (v *lineViewport) SetSize(width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.width = max(width, 10)
	v.height = max(height, 1)
	v.relayout()
}

// View returns exactly height rows.
func (v *lineViewport) View() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	rows := make([]string, v.height)
	for i := range rows {
		if n := v.top + i; n < len(v.lines) {
			rows[i] = v.lines[n]
		}
	}
	return strings.Join(rows, "\n")
}
