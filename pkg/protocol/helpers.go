package protocol

import "fmt"

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewPressMessage creates a press event message
func NewPressMessage(kind PressKind) (*Message, error) {
	return NewMessage(TypePress, PressData{Kind: kind})
}

// NewCommandMessage creates a user gesture message
func NewCommandMessage(action CommandAction, track float64) (*Message, error) {
	return NewMessage(TypeCommand, CommandData{Action: action, Track: track})
}

// NewLocationMessage creates a GPS fix message
func NewLocationMessage(latitude, longitude float64) (*Message, error) {
	return NewMessage(TypeLocation, LocationData{Latitude: latitude, Longitude: longitude})
}

// NewConfirmMessage creates a confirmation request message
func NewConfirmMessage(title, body string, timeoutMs int64, trackThreshold float64) (*Message, error) {
	return NewMessage(TypeConfirm, ConfirmRequest{
		Title:          title,
		Body:           body,
		TimeoutMs:      timeoutMs,
		TrackThreshold: trackThreshold,
	})
}

// NewAlertMessage creates an urgent alert message
func NewAlertMessage(title, body string) (*Message, error) {
	return NewMessage(TypeAlert, AlertData{Title: title, Body: body, Urgent: true})
}

// NewStatusMessage creates an ongoing-status message
func NewStatusMessage(title, body string, actions []string) (*Message, error) {
	return NewMessage(TypeStatus, StatusData{Title: title, Body: body, Actions: actions})
}

// NewClearMessage creates a clear-status message
func NewClearMessage() (*Message, error) {
	return NewMessage(TypeClear, nil)
}

// =============================================================================
// Typed accessors
// =============================================================================

// GetPressData extracts press data from a press message
func (m *Message) GetPressData() (*PressData, error) {
	if m.Type != TypePress {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypePress)
	}
	var data PressData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCommandData extracts command data from a command message
func (m *Message) GetCommandData() (*CommandData, error) {
	if m.Type != TypeCommand {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeCommand)
	}
	var data CommandData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetLocationData extracts the GPS fix from a location message
func (m *Message) GetLocationData() (*LocationData, error) {
	if m.Type != TypeLocation {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeLocation)
	}
	var data LocationData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetConfirmRequest extracts the confirmation request from a confirm message
func (m *Message) GetConfirmRequest() (*ConfirmRequest, error) {
	if m.Type != TypeConfirm {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeConfirm)
	}
	var data ConfirmRequest
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAlertData extracts alert data from an alert message
func (m *Message) GetAlertData() (*AlertData, error) {
	if m.Type != TypeAlert {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeAlert)
	}
	var data AlertData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatusData extracts status data from a status message
func (m *Message) GetStatusData() (*StatusData, error) {
	if m.Type != TypeStatus {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeStatus)
	}
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
