package devserver

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/protocol"
)

const writeTimeout = 5 * time.Second

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardID")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	// Rejections happen after the upgrade so the client sees an
	// application close code instead of a failed handshake.
	subject, err := validateToken(s.cfg.JWTSecret, r.URL.Query().Get("token"))
	if err != nil {
		conn.Close(websocket.StatusCode(protocol.CloseUnauthorized), "unauthorized")
		return
	}
	room, ok := s.store.room(boardID)
	if !ok {
		conn.Close(websocket.StatusCode(protocol.CloseBoardNotFound), "board not found")
		return
	}

	log.Info().Str("board", boardID).Str("subject", subject).Msg("sync client connected")
	s.serveConn(r.Context(), room, conn)
	log.Info().Str("board", boardID).Str("subject", subject).Msg("sync client gone")
}

// serveConn pumps room frames to the socket and client frames into the
// room until either side goes away. ctx is the request context, which
// the http server cancels once this returns, stopping the writer.
func (s *Server) serveConn(ctx context.Context, room *boardRoom, conn *websocket.Conn) {
	sub := room.subscribe()
	defer room.unsubscribe(sub)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-sub.ch:
				wctx, cancel := context.WithTimeout(ctx, writeTimeout)
				err := conn.Write(wctx, websocket.MessageText, frame)
				cancel()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		s.handleClientFrame(room, data)
	}
}

func (s *Server) handleClientFrame(room *boardRoom, data []byte) {
	msg, err := protocol.DecodeClient(data)
	if err != nil {
		log.Debug().Err(err).Str("board", room.id).Msg("dropping client frame")
		return
	}
	switch m := msg.(type) {
	case protocol.Heartbeat:
		// Liveness only.
	case protocol.TaskMove:
		if !m.Status.Known() {
			log.Debug().Str("board", room.id).Str("status", string(m.Status)).Msg("move to unknown status")
			return
		}
		if _, ok := room.move(m.TaskID, m.Status); !ok {
			log.Debug().Str("board", room.id).Str("task", m.TaskID).Msg("move for unknown task")
		}
	case protocol.TaskCreate:
		room.create(m.Task)
	}
}
