package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-whiteboard/internal/config"
	"github.com/npezzotti/go-whiteboard/internal/database"
	"github.com/npezzotti/go-whiteboard/internal/types"
	"github.com/sirupsen/logrus"
)

// Board is the read side of the board server plus the websocket entry point.
type Board interface {
	Stats() types.ServerStats
	RoomInfo(roomId string) (types.RoomInfo, error)
	History(roomId string) ([]types.Entry, error)
	Serve(conn *websocket.Conn)
}

type WhiteboardApp struct {
	log            *logrus.Logger
	db             database.WhiteboardRepository
	srv            *http.Server
	board          Board
	limiter        *ipLimiter
	allowedOrigins []string
}

func NewWhiteboardApp(mux *http.ServeMux, logger *logrus.Logger, board Board, db database.WhiteboardRepository, cfg *config.Config) *WhiteboardApp {
	s := &WhiteboardApp{
		log:            logger,
		db:             db,
		board:          board,
		limiter:        newIPLimiter(cfg.RateLimit, cfg.RateWindow),
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("GET /api/server/stats", s.rateLimit(s.serverStats))
	mux.Handle("GET /api/rooms/{roomId}/info", s.rateLimit(s.roomInfo))
	mux.Handle("GET /api/rooms/{roomId}/history", s.rateLimit(s.roomHistory))
	mux.Handle("GET /api/messages/{roomId}", s.rateLimit(s.getMessages))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *WhiteboardApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *WhiteboardApp) Start() error {
	s.log.Infof("starting server on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *WhiteboardApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
