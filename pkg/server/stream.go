package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sumatoshi-tech/designmap/pkg/observability"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
	"github.com/Sumatoshi-tech/designmap/pkg/scene"
)

// Stream event types.
const (
	EventTransition = "transition"
	EventBatch      = "batch"
	EventError      = "error"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = (streamPongWait * 9) / 10
	streamBuffer    = 64
)

// StreamEvent is one message sent on the run stream. A stream carries zero
// or more transition events followed by one batch event, or an error event.
type StreamEvent struct {
	Type       string               `json:"type"`
	Unit       string               `json:"unit,omitempty"`
	Transition *pipeline.Transition `json:"transition,omitempty"`
	Batch      *pipeline.Batch      `json:"batch,omitempty"`
	Error      string               `json:"error,omitempty"`
	Path       string               `json:"path,omitempty"`
}

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleRunStream upgrades to a websocket, reads one export message and
// streams the unit transitions of its run. Closing the socket cancels the
// run.
func (server *Server) handleRunStream(writer http.ResponseWriter, request *http.Request) {
	conn, err := streamUpgrader.Upgrade(writer, request, nil)
	if err != nil {
		server.logger.WarnContext(request.Context(), "stream upgrade failed", "error", err)

		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(request.Context())
	defer cancel()

	conn.SetReadLimit(server.maxBody)

	err = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	if err != nil {
		return
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	_, payload, err := conn.ReadMessage()
	if err != nil {
		server.logger.WarnContext(ctx, "stream read failed", "error", err)

		return
	}

	stream := newEventStream(conn, cancel)

	go stream.writeLoop()
	defer stream.close()

	doc, err := scene.DecodeBytes(payload)
	if err != nil {
		stream.send(errorEvent(err))

		return
	}

	go drainReads(conn, cancel)

	runner := server.runner.Observed(func(unitID string, transition pipeline.Transition) {
		stream.send(StreamEvent{Type: EventTransition, Unit: unitID, Transition: &transition})
	})

	batch, err := runner.Run(ctx, doc)
	if batch != nil {
		server.runs.Add(batch.RunID, batch)
		observability.CountBatch(ctx, batch)
		stream.send(StreamEvent{Type: EventBatch, Batch: batch})
	}

	if err != nil && batch == nil {
		stream.send(errorEvent(err))
	}
}

// drainReads keeps the pong handler running and cancels the run once the
// client goes away.
func drainReads(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
	}
}

// eventStream serializes writes to one websocket connection.
type eventStream struct {
	conn      *websocket.Conn
	events    chan StreamEvent
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newEventStream(conn *websocket.Conn, cancel context.CancelFunc) *eventStream {
	return &eventStream{
		conn:   conn,
		events: make(chan StreamEvent, streamBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// send queues event, blocking while the buffer is full. Events sent after
// the writer stopped are dropped.
func (stream *eventStream) send(event StreamEvent) {
	select {
	case stream.events <- event:
	case <-stream.done:
	}
}

// close flushes queued events, sends a close frame and waits for the writer.
func (stream *eventStream) close() {
	stream.closeOnce.Do(func() { close(stream.events) })
	<-stream.done
}

func (stream *eventStream) writeLoop() {
	defer close(stream.done)

	ticker := time.NewTicker(streamPingEvery)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-stream.events:
			if !ok {
				_ = stream.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(streamWriteWait))

				return
			}

			err := stream.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err == nil {
				err = stream.conn.WriteJSON(event)
			}

			if err != nil {
				stream.cancel()

				return
			}
		case <-ticker.C:
			err := stream.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait))
			if err != nil {
				stream.cancel()

				return
			}
		}
	}
}

func errorEvent(err error) StreamEvent {
	response := errorResponse(err)

	return StreamEvent{Type: EventError, Error: response.Error, Path: response.Path}
}
