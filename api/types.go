package api

import "encoding/json"

// IngestRequest carries one raw analysis payload from the perception side.
// The payload is validated server-side; nothing here is trusted.
type IngestRequest struct {
	Analysis json.RawMessage `json:"analysis"`
}

type IngestResponse struct {
	EventKey   string `json:"event_key"`
	Dispatched bool   `json:"dispatched"`
	MessageID  string `json:"message_id,omitempty"`
	TopicPath  string `json:"topic_path,omitempty"`
}

type EventJSON struct {
	Key       string          `json:"key"`
	Timestamp string          `json:"timestamp"`
	Analysis  json.RawMessage `json:"analysis"`
}

// ChatRequest is one operator turn. SessionID is empty on the first message;
// the server creates the session and returns its id.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	SessionID string   `json:"session_id"`
	Persona   string   `json:"persona"`
	Text      string   `json:"text"`
	Warnings  []string `json:"warnings,omitempty"`
}

type HistoryResponse struct {
	SessionID string   `json:"session_id"`
	Lines     []string `json:"lines"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
