package server

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-whiteboard/internal/database"
	"github.com/npezzotti/go-whiteboard/internal/stats"
	"github.com/npezzotti/go-whiteboard/internal/types"
	"github.com/sirupsen/logrus"
)

const (
	defaultSettleDelay = 100 * time.Millisecond

	MetricActiveConnections  = "ActiveConnections"
	MetricLiveRooms          = "LiveRooms"
	MetricOperationsAppended = "OperationsAppended"
	MetricRoomsEvicted       = "RoomsEvicted"
	MetricChatMessages       = "ChatMessages"
)

var metrics = []string{
	MetricActiveConnections,
	MetricLiveRooms,
	MetricOperationsAppended,
	MetricRoomsEvicted,
	MetricChatMessages,
}

// Recorder is the write-behind persistence sink. Calls must not block.
type Recorder interface {
	RecordRoom(room database.Room)
	RecordMessage(msg database.Message)
}

type Options struct {
	// EvictionGrace is how long an empty room survives before it is destroyed.
	EvictionGrace time.Duration
	// SettleDelay defers presence broadcasts after a transport disconnect.
	SettleDelay time.Duration
}

// BoardServer coordinates collaboration rooms: it owns the room registry,
// routes broadcasts and interprets client requests.
type BoardServer struct {
	log         *logrus.Logger
	registry    *Registry
	router      *Router
	recorder    Recorder
	stats       stats.StatsProvider
	settleDelay time.Duration
}

func NewBoardServer(logger *logrus.Logger, recorder Recorder, su stats.StatsProvider, opts Options) *BoardServer {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}

	registry := NewRegistry(logger, opts.EvictionGrace)
	s := &BoardServer{
		log:         logger,
		registry:    registry,
		router:      NewRouter(logger, registry),
		recorder:    recorder,
		stats:       su,
		settleDelay: opts.SettleDelay,
	}

	for _, name := range metrics {
		su.RegisterMetric(name)
	}

	registry.OnEvict(func(roomId string) {
		s.stats.Decr(MetricLiveRooms)
		s.stats.Incr(MetricRoomsEvicted)
	})

	return s
}

// Serve runs a websocket connection until it closes.
func (s *BoardServer) Serve(conn *websocket.Conn) {
	c := NewClient(conn, s, s.log)
	s.Register(c)

	go c.Write()
	go c.Read()
}

// Register makes e reachable for broadcasts and pushes the current server
// stats to it.
func (s *BoardServer) Register(e Endpoint) {
	s.router.Add(e)
	s.stats.Incr(MetricActiveConnections)
	s.log.WithField("conn_id", e.Id()).Info("connection registered")

	e.Send(Push(EventServerStats, s.registry.Stats()))
}

// Unregister handles a transport-level disconnect of e. Membership is
// released before e stops being routable.
func (s *BoardServer) Unregister(e Endpoint) {
	s.disconnect(e.Id())

	s.router.Remove(e.Id())
	s.stats.Decr(MetricActiveConnections)
	s.log.WithField("conn_id", e.Id()).Info("connection unregistered")
}

func (s *BoardServer) Stats() types.ServerStats {
	return s.registry.Stats()
}

func (s *BoardServer) RoomInfo(roomId string) (types.RoomInfo, error) {
	return s.registry.RoomInfo(roomId)
}

func (s *BoardServer) History(roomId string) ([]types.Entry, error) {
	return s.registry.Snapshot(roomId)
}

// Shutdown closes every endpoint, stops pending evictions and waits for
// endpoints to unregister or ctx to expire.
func (s *BoardServer) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down board server")
	for _, e := range s.router.Endpoints() {
		e.Close()
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	defer s.registry.Close()
	for s.router.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}
