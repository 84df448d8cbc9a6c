package protocol

import (
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewPressMessage(PressScreenOff)
	if err != nil {
		t.Fatalf("NewPressMessage() error = %v", err)
	}
	if msg.Timestamp == 0 {
		t.Error("expected timestamp to be set")
	}

	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypePress {
		t.Errorf("expected type %s, got %s", TypePress, parsed.Type)
	}

	press, err := parsed.GetPressData()
	if err != nil {
		t.Fatalf("GetPressData() error = %v", err)
	}
	if press.Kind != PressScreenOff {
		t.Errorf("expected kind %s, got %s", PressScreenOff, press.Kind)
	}
}

func TestParseMessageInvalid(t *testing.T) {
	if _, err := ParseMessage([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestTypedAccessorsRejectWrongType(t *testing.T) {
	msg, err := NewAlertMessage("SOS", "Emergency response active")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := msg.GetPressData(); err == nil {
		t.Error("GetPressData() accepted an alert message")
	}
	if _, err := msg.GetCommandData(); err == nil {
		t.Error("GetCommandData() accepted an alert message")
	}

	alert, err := msg.GetAlertData()
	if err != nil {
		t.Fatalf("GetAlertData() error = %v", err)
	}
	if !alert.Urgent {
		t.Error("expected alert to be urgent")
	}
	if alert.Title != "SOS" {
		t.Errorf("expected title SOS, got %s", alert.Title)
	}
}

func TestConfirmMessage(t *testing.T) {
	msg, err := NewConfirmMessage("Emergency?", "Drag to confirm", 30000, 0.7)
	if err != nil {
		t.Fatal(err)
	}

	data, err := msg.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatal(err)
	}

	req, err := parsed.GetConfirmRequest()
	if err != nil {
		t.Fatalf("GetConfirmRequest() error = %v", err)
	}
	if req.TimeoutMs != 30000 {
		t.Errorf("expected timeout 30000, got %d", req.TimeoutMs)
	}
	if req.TrackThreshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %v", req.TrackThreshold)
	}
}

func TestCommandMessages(t *testing.T) {
	tests := []struct {
		name   string
		action CommandAction
		track  float64
	}{
		{"confirm with full drag", ActionConfirm, 1.0},
		{"confirm at threshold", ActionConfirm, 0.72},
		{"cancel", ActionCancel, 0},
		{"stop", ActionStop, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewCommandMessage(tt.action, tt.track)
			if err != nil {
				t.Fatal(err)
			}
			data, err := msg.Bytes()
			if err != nil {
				t.Fatal(err)
			}
			parsed, err := ParseMessage(data)
			if err != nil {
				t.Fatal(err)
			}
			cmd, err := parsed.GetCommandData()
			if err != nil {
				t.Fatal(err)
			}
			if cmd.Action != tt.action {
				t.Errorf("expected action %s, got %s", tt.action, cmd.Action)
			}
			if cmd.Track != tt.track {
				t.Errorf("expected track %v, got %v", tt.track, cmd.Track)
			}
		})
	}
}

func TestClearMessageHasNoData(t *testing.T) {
	msg, err := NewClearMessage()
	if err != nil {
		t.Fatal(err)
	}
	if msg.Data != nil {
		t.Error("expected clear message to carry no data")
	}
}
