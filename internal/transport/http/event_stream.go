package http

import (
	"context"
	"errors"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/roompool/internal/events"
)

// StreamAck answers every frame received on the member-join stream.
type StreamAck struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// Stream accepts member-join events over a WebSocket, one JSON object per text frame,
// and acknowledges each one. Malformed frames are rejected without closing the stream.
// GET /api/events/stream
func (h *EventHandlers) Stream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("event stream accept error")
		return
	}
	defer conn.CloseNow()

	err = h.readStream(c.Request.Context(), conn)

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
		conn.Close(websocket.StatusNormalClosure, "closing")
		return
	}
	h.log.Warn().Err(err).Msg("event stream closed with error")
	conn.Close(websocket.StatusInternalError, "internal error")
}

func (h *EventHandlers) readStream(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, payload, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		ack := StreamAck{Accepted: true}
		if typ != websocket.MessageText {
			ack = StreamAck{Error: "expected a text frame"}
		} else if ev, err := events.Decode(payload); err != nil {
			h.log.Debug().Err(err).Msg("invalid member join frame")
			ack = StreamAck{Error: err.Error()}
		} else {
			h.pool.OnMemberJoin(ctx, ev)
		}

		if err := wsjson.Write(ctx, conn, ack); err != nil {
			return err
		}
	}
}
