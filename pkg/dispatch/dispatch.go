// Package dispatch fans emergency SMS messages out to the contact list
// and observes per-message send and delivery outcomes.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lumasafe/guardian/internal/log"
	"github.com/lumasafe/guardian/pkg/location"
	"github.com/lumasafe/guardian/pkg/store"
)

// Status is one observed outcome for a single message. A send yields
// one send status and, when the send succeeded, a later delivery
// status. Each is reported individually, never merged.
type Status string

const (
	StatusSent           Status = "sent"
	StatusDelivered      Status = "delivered"
	StatusGenericFailure Status = "generic_failure"
	StatusNoService      Status = "no_service"
	StatusNullPDU        Status = "null_pdu"
	StatusRadioOff       Status = "radio_off"
)

// terminal send failures that end a message's status stream
func (s Status) failed() bool {
	switch s {
	case StatusGenericFailure, StatusNoService, StatusNullPDU, StatusRadioOff:
		return true
	}
	return false
}

// Sender submits one SMS. The returned channel emits the send outcome
// and then, for successful sends, the delivery outcome; it is closed
// when no further statuses will arrive. Send itself only fails when
// the message could not be submitted at all.
type Sender interface {
	Send(ctx context.Context, phoneNumber, body string) (<-chan Status, error)
}

// Dispatcher sends a formatted message to every emergency contact.
type Dispatcher struct {
	sender   Sender
	activity store.ActivityLog
	logger   *slog.Logger
}

func New(sender Sender, activity store.ActivityLog) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		activity: activity,
		logger:   log.Component("dispatch"),
	}
}

// FanOut sends body to every contact and blocks until every message
// has reached a terminal outcome or ctx is cancelled. An empty contact
// list is reported through the activity log, not an error.
func (d *Dispatcher) FanOut(ctx context.Context, contacts []store.Contact, body string) {
	if len(contacts) == 0 {
		d.report("No emergency contacts configured, SMS not sent")
		return
	}

	var wg sync.WaitGroup
	for _, contact := range contacts {
		wg.Add(1)
		go func(c store.Contact) {
			defer wg.Done()
			d.sendOne(ctx, c, body)
		}(contact)
	}
	wg.Wait()
}

func (d *Dispatcher) sendOne(ctx context.Context, c store.Contact, body string) {
	statuses, err := d.sender.Send(ctx, c.PhoneNumber, body)
	if err != nil {
		d.report(fmt.Sprintf("SMS to %s could not be submitted", c.Name))
		d.logger.Warn("sms submit failed", "contact", c.Name, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-statuses:
			if !ok {
				return
			}
			switch {
			case status == StatusSent:
				d.report(fmt.Sprintf("SMS sent to %s", c.Name))
			case status == StatusDelivered:
				d.report(fmt.Sprintf("SMS delivered to %s", c.Name))
			case status.failed():
				d.report(fmt.Sprintf("SMS to %s failed (%s)", c.Name, status))
			default:
				d.logger.Warn("unknown sms status", "contact", c.Name, "status", status)
			}
		}
	}
}

func (d *Dispatcher) report(description string) {
	if err := d.activity.Append(description); err != nil {
		d.logger.Warn("activity log append failed", "error", err)
	}
}

// FormatMessage builds the emergency SMS body from the sender's name
// and the acquired position.
func FormatMessage(name string, fix location.Fix, address string) string {
	return fmt.Sprintf(
		"EMERGENCY! %s needs help. Location: %s (https://maps.google.com/?q=%.6f,%.6f)",
		name, address, fix.Latitude, fix.Longitude,
	)
}
