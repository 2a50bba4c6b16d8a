package ws

import (
	"time"

	"github.com/dkeye/GameFinder/internal/core"
	"github.com/dkeye/GameFinder/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// readPump decodes frames and queues them for the exec pump. It owns the
// inbox and closes it on exit, which starts the connection's teardown.
func (s *Server) readPump(sess *core.Session, c *Connection) {
	defer func() {
		log.Debug().Str("module", "adapters.ws").Str("conn", c.id).Msg("readPump closing")
		close(c.inbox)
	}()

	if s.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(s.opts.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Str("module", "adapters.ws").Str("conn", c.id).Msg("readPump read error")
			}
			return
		}

		if !s.limiter.Allow(c.id) {
			s.dispatcher.Reject(sess, c, protocol.Error{Code: "rate_limited", Message: "too many frames"})
			continue
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.ws").Str("session", string(sess.ID())).Str("conn", c.id).Msg("bad frame")
			s.dispatcher.Reject(sess, c, protocol.ErrorFrom(err))
			continue
		}

		if !c.enqueue(ev) {
			log.Warn().Str("module", "adapters.ws").Str("conn", c.id).Str("tag", ev.Tag()).Msg("inbox full")
			s.dispatcher.Reject(sess, c, protocol.Error{Code: "busy", Message: ev.Tag() + " not applied"})
		}
	}
}

// execPump applies queued events in arrival order. Once the inbox is closed
// and drained it detaches the connection from its session.
func (s *Server) execPump(sess *core.Session, c *Connection) {
	defer func() {
		s.dispatcher.Leave(sess, c)
		c.Close()
		s.forget(c)
		log.Info().Str("module", "adapters.ws").Str("session", string(sess.ID())).Str("conn", c.id).Msg("connection closed")
	}()

	for ev := range c.inbox {
		if _, err := s.dispatcher.Execute(sess, ev); err != nil {
			log.Error().Err(err).Str("module", "adapters.ws").Str("conn", c.id).Str("tag", ev.Tag()).Msg("execute")
		}
	}
}

func (s *Server) writePump(c *Connection) {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "adapters.ws").Str("conn", c.id).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "adapters.ws").Str("conn", c.id).Msg("writePump ping error")
				return
			}
		}
	}
}
