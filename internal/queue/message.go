package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-daemon/internal/domain"
)

// OutcomeMessage is the broker payload emitted after a client is finalized.
type OutcomeMessage struct {
	ClientID   int64         `json:"clientId"`
	Status     domain.Status `json:"status"`
	PushSent   bool          `json:"pushSent"`
	EmailSent  bool          `json:"emailSent"`
	ProcName   string        `json:"procName"`
	CycleID    string        `json:"cycleId,omitempty"`
	FinishedAt time.Time     `json:"finishedAt"`
}

func NewOutcomeMessage(outcome domain.Outcome, procName string, cycleID string, finishedAt time.Time) OutcomeMessage {
	return OutcomeMessage{
		ClientID:   outcome.ClientID,
		Status:     outcome.Status,
		PushSent:   outcome.PushSent,
		EmailSent:  outcome.EmailSent,
		ProcName:   procName,
		CycleID:    cycleID,
		FinishedAt: finishedAt.UTC(),
	}
}

func (m OutcomeMessage) Validate() error {
	if m.ClientID <= 0 {
		return fmt.Errorf("clientId is required")
	}
	if !m.Status.IsTerminal() {
		return fmt.Errorf("invalid outcome status %q", m.Status)
	}
	if strings.TrimSpace(m.ProcName) == "" {
		return fmt.Errorf("procName is required")
	}
	return nil
}

// MessageID is stable per client and status so consumers can drop redeliveries.
func (m OutcomeMessage) MessageID() string {
	return fmt.Sprintf("client-%d-%s", m.ClientID, m.Status)
}
