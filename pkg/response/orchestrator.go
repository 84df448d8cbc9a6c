// Package response supervises the emergency response channels. The
// orchestrator owns one run at a time: it subscribes to the settings
// stream, reconciles the running channel tasks against each snapshot,
// and on stop cancels the whole group and waits for every task to
// release its resources.
package response

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumasafe/guardian/internal/log"
	"github.com/lumasafe/guardian/pkg/community"
	"github.com/lumasafe/guardian/pkg/dispatch"
	"github.com/lumasafe/guardian/pkg/evidence"
	"github.com/lumasafe/guardian/pkg/location"
	"github.com/lumasafe/guardian/pkg/settings"
	"github.com/lumasafe/guardian/pkg/store"
)

// Settings is the reactive settings source the orchestrator observes.
type Settings interface {
	Get() settings.Snapshot
	Subscribe() (<-chan settings.Snapshot, func())
}

// Contacts supplies the emergency contact list for SMS fan-out.
type Contacts interface {
	List() []store.Contact
}

// Publisher writes community alerts to the backend.
type Publisher interface {
	Publish(ctx context.Context, alert community.Alert) error
}

// Evidence runs the record/rotate loop until its ctx is cancelled.
type Evidence interface {
	Run(ctx context.Context, mode evidence.Mode)
}

// Surface pushes user-visible status cards to the shell. Optional.
type Surface interface {
	ShowOngoing(title, body string, actions []string)
}

// Profile identifies the user in outbound alerts.
type Profile struct {
	UserID   string
	Username string
	Contact  string
}

// Config holds the orchestrator policy.
type Config struct {
	// FetchTimeout bounds a one-shot location fetch.
	FetchTimeout time.Duration
	// GeocodeTimeout bounds one reverse-geocode call.
	GeocodeTimeout time.Duration
	// UpdateInterval paces continuous location updates.
	UpdateInterval time.Duration
	// StopGrace bounds the wait for one task to release its resources.
	StopGrace time.Duration

	Profile Profile
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator coordinates one response run.
type Orchestrator struct {
	cfg        Config
	settings   Settings
	provider   location.Provider
	geocoder   location.Geocoder
	dispatcher *dispatch.Dispatcher
	contacts   Contacts
	publisher  Publisher
	capture    Evidence
	activity   store.ActivityLog
	logger     *slog.Logger

	// Surface, when set, receives the call-requested status card when
	// the auto-call flag turns on. The daemon cannot place calls; the
	// shell acts on the card.
	Surface Surface

	mu        sync.Mutex
	running   bool
	runCtx    context.Context
	runCancel context.CancelFunc
	cancelSub func()
	loopDone  chan struct{}
	tasks     map[Channel]*task
	cur       desired
	autoCall  bool
}

func New(
	cfg Config,
	src Settings,
	provider location.Provider,
	geocoder location.Geocoder,
	dispatcher *dispatch.Dispatcher,
	contacts Contacts,
	publisher Publisher,
	capture Evidence,
	activity store.ActivityLog,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		settings:   src,
		provider:   provider,
		geocoder:   geocoder,
		dispatcher: dispatcher,
		contacts:   contacts,
		publisher:  publisher,
		capture:    capture,
		activity:   activity,
		logger:     log.Component("response"),
	}
}

// Start begins a response run: spawns the channels enabled by the
// current settings snapshot, publishes the community alert, and keeps
// reconciling against later snapshots. Calling Start while a run is
// active is a no-op.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.running = true
	o.runCancel = cancel
	o.runCtx = runCtx
	o.tasks = make(map[Channel]*task)
	o.cur = desired{}
	o.autoCall = false

	o.report("SOS triggered")
	o.applyLocked(o.settings.Get())
	o.startTaskLocked(ChannelCommunity, func(ctx context.Context) { o.runCommunity(ctx) })

	sub, cancelSub := o.settings.Subscribe()
	o.cancelSub = cancelSub
	o.loopDone = make(chan struct{})
	go o.reconcileLoop(runCtx, sub, o.loopDone)

	return nil
}

// reconcileLoop serializes settings reconciliation: every snapshot is
// applied on this one goroutine, so no two reconciliations race
// against the same task set.
func (o *Orchestrator) reconcileLoop(ctx context.Context, sub <-chan settings.Snapshot, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub:
			if !ok {
				return
			}
			o.mu.Lock()
			if o.running {
				o.applyLocked(snap)
			}
			o.mu.Unlock()
		}
	}
}

// applyLocked reconciles the running tasks against one snapshot.
// Caller holds o.mu.
func (o *Orchestrator) applyLocked(snap settings.Snapshot) {
	next := desiredOf(snap)
	actions := diff(o.cur, next)

	for ch, action := range actions {
		switch action {
		case Unchanged:
			continue
		case Stop:
			o.stopTaskLocked(ch)
		case Start, Restart:
			if action == Restart {
				o.stopTaskLocked(ch)
			}
			o.startChannelLocked(ch, next)
		}
		o.logger.Info("channel reconciled", "channel", ch, "action", action.String())
	}

	if snap.AutoCall && !o.autoCall {
		name := o.contactName(snap.SelectedContactID)
		o.report("Emergency call requested")
		if o.Surface != nil {
			o.Surface.ShowOngoing("Emergency call requested", "Call "+name+" now", []string{"call"})
		}
	}
	o.autoCall = snap.AutoCall
	o.cur = next

	o.report(fmt.Sprintf("Response channels reconciled: location=%v sms=%v recording=%s",
		next.location, next.sms, recordingLabel(next.recording)))
}

func (o *Orchestrator) contactName(id string) string {
	for _, c := range o.contacts.List() {
		if c.ID == id {
			return c.Name
		}
	}
	return "your emergency contact"
}

func recordingLabel(m evidence.Mode) string {
	if m == "" {
		return "off"
	}
	return string(m)
}

func (o *Orchestrator) startChannelLocked(ch Channel, d desired) {
	switch ch {
	case ChannelLocation:
		o.startTaskLocked(ch, func(ctx context.Context) { o.runLocationOnce(ctx) })
	case ChannelSMS:
		o.startTaskLocked(ch, func(ctx context.Context) { o.runSMS(ctx) })
	case ChannelRecording:
		mode := d.recording
		o.startTaskLocked(ch, func(ctx context.Context) { o.capture.Run(ctx, mode) })
	}
}

func (o *Orchestrator) startTaskLocked(ch Channel, run func(context.Context)) {
	ctx, cancel := context.WithCancel(o.runCtx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	o.tasks[ch] = t
	go func() {
		defer close(t.done)
		run(ctx)
	}()
}

// stopTaskLocked cancels one task and waits for it to finish within
// the stop grace period. Tasks own hardware handles, so the wait is
// how resource release is observed.
func (o *Orchestrator) stopTaskLocked(ch Channel) {
	t, ok := o.tasks[ch]
	if !ok {
		return
	}
	delete(o.tasks, ch)
	t.cancel()
	select {
	case <-t.done:
	case <-time.After(o.cfg.StopGrace):
		o.logger.Warn("channel did not stop within grace period", "channel", ch)
	}
}

// Stop cancels every running task, waits for each to release its
// resources, and appends the final log entry. Stop with no active run
// is a no-op. Blocks until shutdown is complete.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.cancelSub()
	o.runCancel()
	for ch := range o.tasks {
		o.stopTaskLocked(ch)
	}
	loopDone := o.loopDone
	o.mu.Unlock()

	<-loopDone
	o.report("All emergency operations stopped")
}

func (o *Orchestrator) runLocationOnce(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	fix, err := o.provider.Current(fctx)
	cancel()
	if err != nil {
		o.report("Location unavailable")
		o.logger.Warn("one-shot location fetch failed", "error", err)
		return
	}
	addr := location.Describe(ctx, o.geocoder, fix, o.cfg.GeocodeTimeout)
	o.report(fmt.Sprintf("Location acquired: %s", addr))
}

func (o *Orchestrator) runSMS(ctx context.Context) {
	fixes, err := o.provider.Watch(ctx, o.cfg.UpdateInterval)
	if err != nil {
		o.report("Location updates unavailable, SMS not sent")
		o.logger.Warn("location watch failed", "error", err)
		return
	}
	reportedNoContacts := false
	for fix := range fixes {
		list := o.contacts.List()
		if len(list) == 0 {
			// Stays true for the rest of the task; a contact added
			// mid-run resumes sending without re-announcing the gap.
			if !reportedNoContacts {
				reportedNoContacts = true
				o.report("No emergency contacts configured, SMS not sent")
			}
			continue
		}
		addr := location.Describe(ctx, o.geocoder, fix, o.cfg.GeocodeTimeout)
		body := dispatch.FormatMessage(o.cfg.Profile.Username, fix, addr)
		o.dispatcher.FanOut(ctx, list, body)
	}
}

// runCommunity composes and publishes the community alert exactly once
// per run. A missing location downgrades the alert, it does not block
// it.
func (o *Orchestrator) runCommunity(ctx context.Context) {
	var fix location.Fix
	text := location.Placeholder

	fctx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	got, err := o.provider.Current(fctx)
	cancel()
	if err == nil {
		fix = got
		text = location.Describe(ctx, o.geocoder, fix, o.cfg.GeocodeTimeout)
	}

	alert := community.Alert{
		ID:           uuid.New().String(),
		UserID:       o.cfg.Profile.UserID,
		Username:     o.cfg.Profile.Username,
		Contact:      o.cfg.Profile.Contact,
		Message:      fmt.Sprintf("EMERGENCY! %s needs help.", o.cfg.Profile.Username),
		Timestamp:    time.Now().UTC(),
		Latitude:     fix.Latitude,
		Longitude:    fix.Longitude,
		LocationText: text,
	}
	if err := o.publisher.Publish(ctx, alert); err != nil {
		o.report("Community alert could not be published")
		o.logger.Warn("community publish failed", "error", err)
		return
	}
	o.report("Community alert published")
}

func (o *Orchestrator) report(description string) {
	if err := o.activity.Append(description); err != nil {
		o.logger.Warn("activity log append failed", "error", err)
	}
}
