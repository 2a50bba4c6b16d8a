package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/GameFinder/internal/app"
	"github.com/dkeye/GameFinder/internal/config"
	"github.com/dkeye/GameFinder/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

var (
	ErrServerClosed = errors.New("ws server closed")
	ErrUpgrade      = errors.New("ws upgrade failed")
)

// Options tunes every connection the server accepts.
type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	SendBuffer   int
	InboxBuffer  int
	RateLimit    int
	RateInterval time.Duration
}

func OptionsFrom(cfg *config.Config) Options {
	return Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait,
		WriteWait:    cfg.WriteWait,
		SendBuffer:   cfg.SendBuffer,
		InboxBuffer:  cfg.InboxBuffer,
		RateLimit:    cfg.RateLimit,
		RateInterval: cfg.RateInterval,
	}
}

// Server owns the websocket side of every room: it upgrades requests, binds
// the resulting connections to their session and tracks their pumps.
type Server struct {
	dispatcher *app.Dispatcher
	opts       Options
	limiter    *RateLimiter
	upgrader   websocket.Upgrader

	wg      conc.WaitGroup
	mu      sync.Mutex
	conns   map[string]*Connection
	closing bool
}

func (o Options) withDefaults() Options {
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.InboxBuffer <= 0 {
		o.InboxBuffer = 64
	}
	return o
}

func NewServer(dispatcher *app.Dispatcher, opts Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		dispatcher: dispatcher,
		opts:       opts,
		limiter:    NewRateLimiter(opts.RateLimit, opts.RateInterval),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*Connection),
	}
}

// Serve attaches a new connection to sess and upgrades the request. The
// attach happens first so a client never gets a socket for a room that is
// already gone. On ErrUpgrade the response has already been written.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, sess *core.Session) error {
	c := newConnection(s.opts.SendBuffer, s.opts.InboxBuffer)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.conns[c.id] = c
	s.mu.Unlock()

	if err := s.dispatcher.Join(sess, c); err != nil {
		s.forget(c)
		return err
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.dispatcher.Leave(sess, c)
		c.Close()
		s.forget(c)
		return fmt.Errorf("%w: %v", ErrUpgrade, err)
	}
	c.conn = ws

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		s.dispatcher.Leave(sess, c)
		c.Close()
		_ = ws.Close()
		delete(s.conns, c.id)
		return ErrServerClosed
	}
	s.wg.Go(func() { s.readPump(sess, c) })
	s.wg.Go(func() { s.execPump(sess, c) })
	s.wg.Go(func() { s.writePump(c) })

	log.Info().Str("module", "adapters.ws").Str("session", string(sess.ID())).Str("conn", c.id).Msg("connection open")
	return nil
}

// Len reports the number of open connections.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown closes every connection and waits for their pumps, including
// events already queued, to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	log.Info().Str("module", "adapters.ws").Int("connections", len(conns)).Msg("shutting down")
	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) forget(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.limiter.Forget(c.id)
}
