// Package reaction keeps like and dislike counters consistent on the client
// while a toggle is in flight.
package reaction

import (
	"context"
	"fmt"

	"github.com/npezzotti/topichat/internal/types"
	"go.uber.org/zap"
)

// Toggle projects a reaction toggle onto state. Like and dislike are
// mutually exclusive: turning one on turns the other off, and toggling an
// active reaction clears it.
func Toggle(s types.ReactionState, kind types.ReactionKind) types.ReactionState {
	switch kind {
	case types.ReactionLike:
		if s.Liked {
			s.Liked = false
			s.LikeCount = decr(s.LikeCount)
			return s
		}
		if s.Disliked {
			s.Disliked = false
			s.DislikeCount = decr(s.DislikeCount)
		}
		s.Liked = true
		s.LikeCount++
	case types.ReactionDislike:
		if s.Disliked {
			s.Disliked = false
			s.DislikeCount = decr(s.DislikeCount)
			return s
		}
		if s.Liked {
			s.Liked = false
			s.LikeCount = decr(s.LikeCount)
		}
		s.Disliked = true
		s.DislikeCount++
	}
	return s
}

func decr(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}

// Store persists a toggle and returns counts recomputed from reaction rows.
type Store interface {
	ToggleReaction(ctx context.Context, messageId int, kind types.ReactionKind) (types.ReactionState, error)
}

// ViewerFunc returns the signed-in viewer, if any.
type ViewerFunc func() (int, bool)

type Aggregator struct {
	store  Store
	viewer ViewerFunc
	log    *zap.Logger
}

func NewAggregator(store Store, viewer ViewerFunc, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		viewer: viewer,
		log:    logger,
	}
}

// Toggle applies kind to current optimistically through apply, then
// persists it. On failure apply receives current unchanged; on success it
// receives the authoritative state. Without a viewer nothing happens.
func (a *Aggregator) Toggle(ctx context.Context, messageId int, kind types.ReactionKind, current types.ReactionState, apply func(types.ReactionState)) error {
	if _, ok := a.viewer(); !ok {
		a.log.Debug("ignoring reaction without a viewer", zap.Int("message_id", messageId))
		return nil
	}
	if kind != types.ReactionLike && kind != types.ReactionDislike {
		return fmt.Errorf("unknown reaction kind %q", kind)
	}

	snapshot := current
	apply(Toggle(current, kind))

	state, err := a.store.ToggleReaction(ctx, messageId, kind)
	if err != nil {
		a.log.Warn("toggle reaction failed, restoring previous state",
			zap.Int("message_id", messageId),
			zap.String("kind", string(kind)),
			zap.Error(err))
		apply(snapshot)
		return fmt.Errorf("toggle %s: %w", kind, err)
	}

	apply(state)
	return nil
}
