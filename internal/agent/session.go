package agent

import (
	"fmt"

	"github.com/google/uuid"
)

// PersonaName identifies one of the specialized agent roles.
type PersonaName string

const (
	PersonaDispatch PersonaName = "dispatch_agent"
	PersonaQuery    PersonaName = "query_agent"
	PersonaReport   PersonaName = "report_agent"
)

// HistoryEntry is one (event id, persona) pair observed during a session.
// Transfer entries carry "none" as the event id; response entries carry a
// fresh uuid so provenance can be audited later.
type HistoryEntry struct {
	EventID string
	Persona PersonaName
}

// AuditLine renders the entry in the debug/audit format consumers expect.
func (h HistoryEntry) AuditLine() string {
	return fmt.Sprintf("Event from an agent: %s, event id: %s", h.Persona, h.EventID)
}

// Session is the per-operator conversation state. The router owns it
// exclusively; turns for one session are processed strictly in arrival order
// by the caller, so Session itself carries no lock.
type Session struct {
	ID      string
	Active  PersonaName
	History []HistoryEntry

	ended bool
}

// NewSession starts a conversation with the query persona active; the first
// transfer moves it wherever the operator's intent needs.
func NewSession() *Session {
	return &Session{
		ID:     uuid.New().String(),
		Active: PersonaQuery,
	}
}

// End moves the session to its terminal state. Only an explicit operator
// disconnect leads here; no persona transition does.
func (s *Session) End() {
	s.ended = true
}

func (s *Session) Ended() bool {
	return s.ended
}

// AuditLines renders the full history for audit/debug output, one line per
// entry.
func (s *Session) AuditLines() []string {
	lines := make([]string, len(s.History))
	for i, h := range s.History {
		lines[i] = h.AuditLine()
	}
	return lines
}

// commit appends a turn's history entries in one step, so a turn cancelled
// mid-flight never leaves the history half-updated.
func (s *Session) commit(entries []HistoryEntry) {
	s.History = append(s.History, entries...)
}
