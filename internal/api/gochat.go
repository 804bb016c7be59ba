package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/npezzotti/topichat/internal/changefeed"
	"github.com/npezzotti/topichat/internal/config"
	"github.com/npezzotti/topichat/internal/database"
	"github.com/npezzotti/topichat/internal/server"
	"github.com/npezzotti/topichat/internal/stats"
	"github.com/npezzotti/topichat/internal/types"
	"github.com/teris-io/shortid"
	"go.uber.org/zap"
)

type GoChatApp struct {
	log             *zap.Logger
	db              database.Repository
	mux             *http.Server
	cs              *server.ChatServer
	stats           stats.StatsProvider
	pub             changefeed.Publisher
	curator         CuratorService
	qaLimiter       *limiterPool
	validate        *validator.Validate
	signingKey      []byte
	allowedOrigins  []string
	curatorSecret   string
	generateShortId func() (string, error)
}

type AppOption func(*GoChatApp)

// WithPublisher sets where message changes are announced.
func WithPublisher(pub changefeed.Publisher) AppOption {
	return func(s *GoChatApp) {
		s.pub = pub
	}
}

func WithCuratorService(c CuratorService) AppOption {
	return func(s *GoChatApp) {
		s.curator = c
	}
}

func NewGoChatApp(mux *http.ServeMux, logger *zap.Logger, cs *server.ChatServer, db database.Repository, st stats.StatsProvider, cfg *config.Config, opts ...AppOption) *GoChatApp {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &GoChatApp{
		log:             logger,
		db:              db,
		cs:              cs,
		stats:           st,
		qaLimiter:       newLimiterPool(cfg.Curator.QARatePerMinute, cfg.Curator.QABurst),
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		curatorSecret:   cfg.Curator.Secret,
		generateShortId: shortid.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("/api/account", s.authMiddleware(s.account))
	mux.HandleFunc("PUT /api/account/interests", s.authMiddleware(s.updateInterests))

	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.getRoom))
	mux.HandleFunc("DELETE /api/rooms", s.authMiddleware(s.deleteRoom))
	mux.HandleFunc("PUT /api/rooms/settings", s.authMiddleware(s.updateRoomSettings))
	mux.HandleFunc("POST /api/rooms/read", s.authMiddleware(s.markRead))
	mux.HandleFunc("GET /api/rooms/summaries", s.authMiddleware(s.getRoomSummaries))
	mux.HandleFunc("GET /api/subscriptions", s.authMiddleware(s.getUsersSubscriptions))

	mux.HandleFunc("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.HandleFunc("POST /api/messages", s.authMiddleware(s.createMessage))
	mux.HandleFunc("GET /api/messages/{id}", s.authMiddleware(s.getMessage))
	mux.HandleFunc("DELETE /api/messages/{id}", s.authMiddleware(s.deleteMessage))
	mux.HandleFunc("POST /api/messages/{id}/reactions", s.authMiddleware(s.toggleReaction))
	mux.HandleFunc("GET /api/messages/{id}/comments", s.authMiddleware(s.getComments))
	mux.HandleFunc("POST /api/messages/{id}/comments", s.authMiddleware(s.createComment))
	mux.HandleFunc("DELETE /api/comments/{id}", s.authMiddleware(s.deleteComment))

	mux.HandleFunc("POST /api/curator/idle", s.curatorAuth(s.runIdle))
	mux.HandleFunc("POST /api/curator/news", s.curatorAuth(s.runNews))
	mux.HandleFunc("POST /api/curator/summaries", s.curatorAuth(s.runSummaries))
	mux.HandleFunc("POST /api/curator/qa", s.authMiddleware(s.askCurator))

	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", curatorSecretHeader}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *GoChatApp) Start() error {
	s.log.Info("starting server", zap.String("addr", s.mux.Addr))
	return s.mux.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Error("health check", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *GoChatApp) incr(name string) {
	if s.stats != nil {
		s.stats.Incr(name)
	}
}

// publish announces a message change to every viewer of the room, so the
// acting user's reaction flags are cleared. Failures are logged; the write
// that caused the change has already succeeded.
func (s *GoChatApp) publish(ctx context.Context, kind types.ChangeKind, msg types.Message) {
	if s.pub == nil {
		return
	}
	ev := types.ChangeEvent{Kind: kind, RoomId: msg.RoomId, Message: msg.Shared()}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn("publish change", zap.String("kind", string(kind)), zap.Int("message_id", msg.Id), zap.Error(err))
	}
}
