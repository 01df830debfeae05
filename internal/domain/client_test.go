package domain

import (
	"errors"
	"testing"
)

func TestParseStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{name: "valid lowercase", input: "pending", want: StatusPending},
		{name: "valid uppercase with spaces", input: " NOTIFIED ", want: StatusNotified},
		{name: "invalid", input: "sent", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseStatusFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseStatusFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseStatusFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	for status, want := range map[Status]bool{
		StatusPending:    false,
		StatusProcessing: false,
		StatusNotified:   true,
		StatusError:      true,
	} {
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestFlagFromBool(t *testing.T) {
	t.Parallel()

	if got := FlagFromBool(true); got != SentYes {
		t.Fatalf("FlagFromBool(true) = %s, want yes", got)
	}
	if got := FlagFromBool(false); got != SentNo {
		t.Fatalf("FlagFromBool(false) = %s, want no", got)
	}
}

func TestOutcomeValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		outcome Outcome
		wantErr bool
	}{
		{name: "notified", outcome: Outcome{ClientID: 1, Status: StatusNotified, PushSent: true}},
		{name: "error", outcome: Outcome{ClientID: 1, Status: StatusError}},
		{name: "missing id", outcome: Outcome{Status: StatusNotified}, wantErr: true},
		{name: "non-terminal status", outcome: Outcome{ClientID: 1, Status: StatusProcessing}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.outcome.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}
