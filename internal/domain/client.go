package domain

import (
	"fmt"
	"strings"
)

// Status represents the processing state of a client record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusNotified   Status = "notified"
	StatusError      Status = "error"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusNotified, StatusError:
		return true
	}
	return false
}

// IsTerminal reports whether s is an outcome of a dispatch attempt.
func (s Status) IsTerminal() bool {
	return s == StatusNotified || s == StatusError
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// SentFlag is the persisted yes/no outcome of one channel.
type SentFlag string

const (
	SentYes SentFlag = "yes"
	SentNo  SentFlag = "no"
)

func (f SentFlag) String() string { return string(f) }

func FlagFromBool(sent bool) SentFlag {
	if sent {
		return SentYes
	}
	return SentNo
}

// Channel identifies a notification transport.
type Channel string

const (
	ChannelPush  Channel = "PUSH"
	ChannelEmail Channel = "EMAIL"
)

func (c Channel) String() string { return string(c) }

// Client is a recipient record polled from the clients table.
type Client struct {
	ID          int64
	PushID      string
	Email       string
	Status      Status
	ProcName    string
	IsPushSent  SentFlag
	IsEmailSent SentFlag
}

// Outcome is the result of one dispatch attempt for a claimed client.
type Outcome struct {
	ClientID  int64
	Status    Status
	PushSent  bool
	EmailSent bool
}

func (o Outcome) Validate() error {
	if o.ClientID <= 0 {
		return fmt.Errorf("%w: client id must be positive", ErrValidation)
	}
	if !o.Status.IsTerminal() {
		return fmt.Errorf("%w: outcome status %q is not terminal", ErrValidation, o.Status)
	}
	return nil
}
