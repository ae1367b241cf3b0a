package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/VenkatGGG/taxa-totals/internal/engine"
	"github.com/VenkatGGG/taxa-totals/internal/taxon"
)

const streamBuffer = 512

type streamRequest struct {
	IDs []int64 `json:"ids"`
}

type streamMessage struct {
	ID    taxon.ID `json:"id,omitempty"`
	Total *int64   `json:"total,omitempty"`
	Error string   `json:"error,omitempty"`
}

// handleStream keeps a discovery session open: the client pushes batches of ids as it finds
// them and receives one message per resolved id, including ids resolved later by the retry
// loop.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Printf("stream accept failed: remote=%s err=%v", r.RemoteAddr, err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	streamID := uuid.NewString()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan streamMessage, streamBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeStream(ctx, cancel, conn, out, streamID)
	}()

	deliver := func(id taxon.ID, total int64) {
		select {
		case <-ctx.Done():
			return
		default:
		}
		select {
		case out <- streamMessage{ID: id, Total: &total}:
		default:
			s.logger.Printf("stream buffer full, dropping delivery: stream=%s id=%s", streamID, id)
		}
	}

	var waiting []engine.Registration
	s.logger.Printf("stream opened: stream=%s remote=%s", streamID, r.RemoteAddr)
	for {
		var req streamRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				s.logger.Printf("stream read failed: stream=%s err=%v", streamID, err)
			}
			break
		}

		ids, err := toIDs(req.IDs)
		if err != nil {
			select {
			case out <- streamMessage{Error: err.Error()}:
			case <-ctx.Done():
			}
			continue
		}
		result := s.totals.Discover(ctx, ids, deliver)
		waiting = append(waiting, result.Waiting...)
	}

	cancel()
	<-writerDone
	if n := s.totals.Cancel(waiting...); n > 0 {
		s.logger.Printf("stream withdrew pending deliveries: stream=%s count=%d", streamID, n)
	}
	s.logger.Printf("stream closed: stream=%s", streamID)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) writeStream(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan streamMessage, streamID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-out:
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				s.logger.Printf("stream write failed: stream=%s err=%v", streamID, err)
				cancel()
				return
			}
		}
	}
}
