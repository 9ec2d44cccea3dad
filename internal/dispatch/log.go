package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"
)

// LogTransport is a bus-less Transport for local development: it logs the
// envelope and fabricates monotonically increasing numeric message ids in the
// same shape the real bus assigns.
type LogTransport struct {
	topic string
	seq   atomic.Int64
}

func NewLogTransport(topic string) *LogTransport {
	t := &LogTransport{topic: topic}
	t.seq.Store(time.Now().UnixMilli())
	return t
}

func (t *LogTransport) TopicPath() string {
	return "log://topics/" + t.topic
}

func (t *LogTransport) Publish(_ context.Context, data []byte, attrs map[string]string) (string, error) {
	id := strconv.FormatInt(t.seq.Add(1), 10)
	slog.Info("dispatch (log transport)",
		"topic", t.topic,
		"message_id", id,
		"payload", string(data),
		"attrs", attrs,
	)
	return id, nil
}
