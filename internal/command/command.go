// Package command recognizes curator keywords in outgoing chat text.
package command

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/npezzotti/topichat/internal/types"
	"go.uber.org/zap"
)

// Trigger starts suggestion mode when typed as the first character.
const Trigger = "/"

const defaultAskTimeout = 60 * time.Second

// DefaultKeywords is used when no keywords are configured.
var DefaultKeywords = []string{"/질문"}

type Classification struct {
	IsCommand bool
	Keyword   string
	Remainder string
}

// Asker forwards a question to the Q&A curator of a room.
type Asker interface {
	AskCurator(ctx context.Context, roomId, question string) error
}

type Style int

const (
	StyleNormal Style = iota
	StyleCommand
	StyleCurator
	StyleLocal
)

type ErrorHandler func(roomId, question string, err error)

type Option func(*Dispatcher)

// WithErrorHandler is called from the dispatch goroutine when a curator
// request fails.
func WithErrorHandler(h ErrorHandler) Option {
	return func(d *Dispatcher) {
		d.onError = h
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

type Dispatcher struct {
	keywords []string
	asker    Asker
	log      *zap.Logger
	timeout  time.Duration
	onError  ErrorHandler
	wg       sync.WaitGroup
}

func NewDispatcher(keywords []string, asker Asker, logger *zap.Logger, opts ...Option) *Dispatcher {
	kw := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			kw = append(kw, k)
		}
	}
	if len(kw) == 0 {
		kw = append(kw, DefaultKeywords...)
	}

	d := &Dispatcher{
		keywords: kw,
		asker:    asker,
		log:      logger,
		timeout:  defaultAskTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Keywords() []string {
	return append([]string(nil), d.keywords...)
}

// Classify reports whether text starts with a configured keyword. Matching
// is case-sensitive and the longest keyword wins.
func (d *Dispatcher) Classify(text string) Classification {
	var match string
	for _, kw := range d.keywords {
		if strings.HasPrefix(text, kw) && len(kw) > len(match) {
			match = kw
		}
	}
	if match == "" {
		return Classification{}
	}

	return Classification{
		IsCommand: true,
		Keyword:   match,
		Remainder: strings.TrimSpace(text[len(match):]),
	}
}

// Suggest lists keywords matching the partial keyword typed so far. It
// returns nil once the input no longer looks like a keyword in progress.
func (d *Dispatcher) Suggest(input string) []string {
	if !strings.HasPrefix(input, Trigger) || strings.ContainsAny(input, " \t\n") {
		return nil
	}

	partial := strings.ToLower(input)
	var out []string
	for _, kw := range d.keywords {
		if strings.HasPrefix(strings.ToLower(kw), partial) {
			out = append(out, kw)
		}
	}
	sort.Strings(out)
	return out
}

// Complete is the input text after picking a suggestion.
func Complete(keyword string) string {
	return keyword + " "
}

// Dispatch asks the curator in the background when text is a command with a
// question. It never blocks and reports whether a request was started.
func (d *Dispatcher) Dispatch(roomId, text string) bool {
	c := d.Classify(text)
	if !c.IsCommand || c.Remainder == "" || d.asker == nil {
		return false
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.asker.AskCurator(ctx, roomId, c.Remainder); err != nil {
			d.log.Warn("curator request failed",
				zap.String("room_id", roomId),
				zap.String("keyword", c.Keyword),
				zap.Error(err))
			if d.onError != nil {
				d.onError(roomId, c.Remainder, err)
			}
			return
		}
		d.log.Debug("curator request sent", zap.String("room_id", roomId))
	}()

	return true
}

// Wait blocks until every dispatched request has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Style picks how a message is drawn. It has no effect on what is stored.
func (d *Dispatcher) Style(msg types.Message) Style {
	switch {
	case msg.Local:
		return StyleLocal
	case msg.IsCurator():
		return StyleCurator
	case !msg.IsDeleted && d.Classify(msg.Content).IsCommand:
		return StyleCommand
	default:
		return StyleNormal
	}
}
