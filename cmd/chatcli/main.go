// Command chatcli is a terminal client for one topichat room.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/npezzotti/topichat/internal/client"
	"github.com/npezzotti/topichat/internal/command"
	"github.com/npezzotti/topichat/internal/config"
	"github.com/npezzotti/topichat/internal/feed"
	"github.com/npezzotti/topichat/internal/logging"
	"github.com/npezzotti/topichat/internal/snapshot"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// nearBottomRows is how many rows from the bottom still count as following
// the conversation.
const nearBottomRows = 2

var (
	serverURL string
	email     string
	password  string
	roomId    string
	interests string
	keywords  string
	redisURL  string
	logFile   string
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatcli:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	flag.StringVar(&serverURL, "server", config.Getenv("TOPICHAT_SERVER_URL", "http://localhost:8000"), "topichat server URL")
	flag.StringVar(&email, "email", config.Getenv("TOPICHAT_EMAIL", ""), "account email")
	flag.StringVar(&password, "password", config.Getenv("TOPICHAT_PASSWORD", ""), "account password")
	flag.StringVar(&roomId, "room", config.Getenv("TOPICHAT_ROOM", ""), "room id, defaults to the first subscribed room")
	flag.StringVar(&interests, "interests", config.Getenv("TOPICHAT_INTERESTS", ""), "comma-separated interests to set before joining")
	flag.StringVar(&keywords, "keywords", config.Getenv("TOPICHAT_COMMAND_KEYWORDS", ""), "comma-separated curator command keywords")
	flag.StringVar(&redisURL, "redis", config.Getenv("TOPICHAT_REDIS_URL", ""), "redis URL for room snapshots, in memory when empty")
	flag.StringVar(&logFile, "log-file", config.Getenv("TOPICHAT_LOG_FILE", "chatcli.log"), "log file")
	flag.Parse()

	if email == "" || password == "" {
		return errors.New("email and password are required")
	}

	logger := logging.New(logging.Options{File: logFile, NoConsole: true, Level: zapcore.DebugLevel})
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cl, err := client.New(serverURL, logger.Named("client"))
	if err != nil {
		return err
	}

	user, err := cl.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if interests != "" {
		if user, err = cl.SetInterests(ctx, splitList(interests)); err != nil {
			return fmt.Errorf("set interests: %w", err)
		}
	}

	if roomId == "" {
		if roomId, err = firstRoom(ctx, cl); err != nil {
			return err
		}
	}

	access, err := cl.Room(ctx, roomId)
	if err != nil {
		return fmt.Errorf("load room %s: %w", roomId, err)
	}

	cache, closeCache, err := openCache(ctx, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	vp := newLineViewport(nil)

	var fd *feed.Feed
	commands := command.NewDispatcher(splitList(keywords), cl, logger.Named("command"),
		command.WithErrorHandler(func(_, question string, err error) {
			fd.AppendLocal(fmt.Sprintf("The curator could not answer %q: %v", question, err))
		}))
	vp.render = messageRenderer(commands)

	fd = feed.New(roomId, user.Id, cl, cl, cache, vp, commands, logger.Named("feed"),
		feed.WithNearBottomThreshold(nearBottomRows))

	p := tea.NewProgram(newModel(ctx, fd, commands, vp, access, user), tea.WithAltScreen())
	fd.OnChange(func() { p.Send(feedChangedMsg{}) })

	_, runErr := p.Run()

	if err := fd.Close(); err != nil {
		logger.Warn("close feed", zap.Error(err))
	}
	commands.Wait()
	return runErr
}

func firstRoom(ctx context.Context, cl *client.Client) (string, error) {
	subs, err := cl.Subscriptions(ctx)
	if err != nil {
		return "", fmt.Errorf("list rooms: %w", err)
	}
	if len(subs) == 0 {
		return "", errors.New("not subscribed to any room, pass -room or -interests")
	}
	return subs[0].Room.ExternalId, nil
}

func openCache(ctx context.Context, logger *zap.Logger) (snapshot.Cache, func(), error) {
	if redisURL == "" {
		return snapshot.NewMemoryCache(snapshot.DefaultTTL), func() {}, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rdb, err := snapshot.DialRedis(dialCtx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using redis snapshot cache")
	return snapshot.NewRedisCache(rdb, snapshot.DefaultTTL), func() { rdb.Close() }, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
