package transport

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/rjboer/radarcore/internal/logging"
	"github.com/rjboer/radarcore/internal/message"
)

// demux turns inbound frames into messages. A frame that fails to decode is
// answered with InvalidMsg without reaching the orchestrator.
type demux struct {
	conn   *websocket.Conn
	logger logging.Logger
}

func (d demux) run(inbox chan<- message.Message, direct chan<- message.Ack, ended <-chan struct{}) {
	for {
		kind, data, err := d.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.logger.Debug("read ended", logging.F("error", err))
			}
			select {
			case inbox <- message.Control{Command: message.BrokenConnection}:
			case <-ended:
			}
			return
		}

		var m message.Message
		if kind == websocket.TextMessage {
			m, err = message.Decode(data)
		} else {
			err = message.ErrMalformed
		}
		if err != nil {
			d.logger.Warn("undecodable frame", logging.F("error", err))
			select {
			case direct <- message.Ack{Retval: message.RetvalInvalidMsg}:
			case <-ended:
				return
			}
			continue
		}

		select {
		case inbox <- m:
		case <-ended:
			return
		}
	}
}

// sender writes acks until the orchestrator closes outbox. Each debug ack is
// followed by its sample frame. Write errors are logged and draining goes on
// so the orchestrator never blocks on a dead peer.
type sender struct {
	conn   *websocket.Conn
	logger logging.Logger
}

func (s sender) run(outbox <-chan message.Ack, direct <-chan message.Ack) {
	for {
		select {
		case a, ok := <-outbox:
			if !ok {
				s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			s.write(a)
		case a := <-direct:
			s.write(a)
		}
	}
}

func (s sender) write(a message.Ack) {
	frame, err := message.EncodeAck(a)
	if err != nil {
		s.logger.Error("encode ack", logging.F("error", err))
		return
	}
	if !s.frame(frame) || a.Debug == nil {
		return
	}
	frame, err = message.EncodeDebug(*a.Debug)
	if err != nil {
		s.logger.Error("encode debug samples", logging.F("error", err))
		return
	}
	s.frame(frame)
}

func (s sender) frame(data []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Warn("write failed", logging.F("error", err))
		return false
	}
	return true
}
