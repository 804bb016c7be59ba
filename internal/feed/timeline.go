package feed

import (
	"slices"
	"sort"

	"github.com/npezzotti/topichat/internal/types"
)

// Metrics describes a scroll container. Units are whatever the viewport
// measures in (pixels, terminal rows).
type Metrics struct {
	ScrollTop    int
	ScrollHeight int
	ClientHeight int
}

func (m Metrics) DistanceFromBottom() int {
	d := m.ScrollHeight - m.ClientHeight - m.ScrollTop
	if d < 0 {
		return 0
	}
	return d
}

// Bottom is the scroll offset that reveals the last row.
func (m Metrics) Bottom() int {
	if m.ScrollHeight <= m.ClientHeight {
		return 0
	}
	return m.ScrollHeight - m.ClientHeight
}

// AnchorOffset keeps the row that was visible at the top in place after
// older rows were added above it.
func AnchorOffset(before, after Metrics) int {
	return before.ScrollTop + after.ScrollHeight - before.ScrollHeight
}

func indexOf(list []types.Message, id int) int {
	return slices.IndexFunc(list, func(m types.Message) bool { return m.Id == id })
}

// Merge replaces the message with msg's id, or inserts msg at its ascending
// position. Applying the same msg twice yields the same list.
func Merge(list []types.Message, msg types.Message) []types.Message {
	out := slices.Clone(list)
	if i := indexOf(out, msg.Id); i >= 0 {
		out[i] = msg
		return out
	}

	if len(out) == 0 || !msg.Before(out[len(out)-1]) {
		return append(out, msg)
	}
	i := sort.Search(len(out), func(i int) bool { return msg.Before(out[i]) })
	return slices.Insert(out, i, msg)
}

// Prepend puts an older ascending page in front of list, skipping rows that
// are already present.
func Prepend(list, page []types.Message) []types.Message {
	out := make([]types.Message, 0, len(page)+len(list))
	for _, m := range page {
		if indexOf(list, m.Id) < 0 && indexOf(out, m.Id) < 0 {
			out = append(out, m)
		}
	}
	return append(out, list...)
}

func Remove(list []types.Message, id int) []types.Message {
	return slices.DeleteFunc(slices.Clone(list), func(m types.Message) bool { return m.Id == id })
}

// IsSorted reports whether list is ascending by (created_at, id).
func IsSorted(list []types.Message) bool {
	for i := 1; i < len(list); i++ {
		if list[i].Before(list[i-1]) {
			return false
		}
	}
	return true
}

// ascending turns a newest-first page into display order.
func ascending(page []types.Message) []types.Message {
	out := make([]types.Message, len(page))
	for i, m := range page {
		out[len(page)-1-i] = m.Masked()
	}
	return out
}
