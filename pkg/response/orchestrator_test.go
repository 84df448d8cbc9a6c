package response

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lumasafe/guardian/pkg/community"
	"github.com/lumasafe/guardian/pkg/dispatch"
	"github.com/lumasafe/guardian/pkg/evidence"
	"github.com/lumasafe/guardian/pkg/location"
	"github.com/lumasafe/guardian/pkg/settings"
	"github.com/lumasafe/guardian/pkg/store"
)

type fakeSettings struct {
	mu   sync.Mutex
	snap settings.Snapshot
	sub  chan settings.Snapshot
}

func newFakeSettings(snap settings.Snapshot) *fakeSettings {
	return &fakeSettings{snap: snap, sub: make(chan settings.Snapshot, 8)}
}

func (f *fakeSettings) Get() settings.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSettings) Subscribe() (<-chan settings.Snapshot, func()) {
	return f.sub, func() {}
}

func (f *fakeSettings) emit(snap settings.Snapshot) {
	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
	f.sub <- snap
}

type fakeEvidence struct {
	mu     sync.Mutex
	starts []evidence.Mode
	active int
}

func (f *fakeEvidence) Run(ctx context.Context, mode evidence.Mode) {
	f.mu.Lock()
	f.starts = append(f.starts, mode)
	f.active++
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
}

func (f *fakeEvidence) Starts() []evidence.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]evidence.Mode, len(f.starts))
	copy(out, f.starts)
	return out
}

func (f *fakeEvidence) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

type fakePublisher struct {
	mu     sync.Mutex
	alerts []community.Alert
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, alert community.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakePublisher) Alerts() []community.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]community.Alert, len(f.alerts))
	copy(out, f.alerts)
	return out
}

type fakeContacts []store.Contact

func (f fakeContacts) List() []store.Contact { return f }

type rig struct {
	orch     *Orchestrator
	set      *fakeSettings
	ev       *fakeEvidence
	pub      *fakePublisher
	sender   *dispatch.MockSender
	activity *store.MemActivityLog
	provider *location.MockProvider
}

func newRig(t *testing.T, snap settings.Snapshot) *rig {
	t.Helper()
	set := newFakeSettings(snap)
	ev := &fakeEvidence{}
	pub := &fakePublisher{}
	sender := dispatch.NewMockSender()
	activity := store.NewMemActivityLog()
	provider := location.NewMockProvider()
	provider.SetFix(location.Fix{Latitude: 51.5, Longitude: -0.12, Time: time.Now()})

	cfg := Config{
		FetchTimeout:   time.Second,
		GeocodeTimeout: time.Second,
		UpdateInterval: 5 * time.Millisecond,
		StopGrace:      2 * time.Second,
		Profile:        Profile{UserID: "u1", Username: "sam", Contact: "+15550000"},
	}
	orch := New(cfg, set, provider, &location.MockGeocoder{Address: "Westminster"},
		dispatch.New(sender, activity),
		fakeContacts{{ID: "1", Name: "Ada", PhoneNumber: "+15550001"}},
		pub, ev, activity)
	return &rig{orch: orch, set: set, ev: ev, pub: pub, sender: sender, activity: activity, provider: provider}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestIdempotentReconciliation(t *testing.T) {
	snap := settings.Snapshot{ShareLocation: true, RecordAudio: true}
	r := newRig(t, snap)
	if err := r.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.orch.Stop()

	waitFor(t, "recording start", func() bool { return len(r.ev.Starts()) == 1 })

	// Same snapshot twice more: zero additional spawns.
	r.set.emit(snap)
	r.set.emit(snap)
	waitFor(t, "reconciliations applied", func() bool {
		n := 0
		for _, d := range r.activity.Descriptions() {
			if strings.HasPrefix(d, "Response channels reconciled") {
				n++
			}
		}
		return n >= 3
	})

	if got := len(r.ev.Starts()); got != 1 {
		t.Errorf("recording spawned %d times, want 1", got)
	}
}

func TestExclusiveRecordingVideoWins(t *testing.T) {
	r := newRig(t, settings.Snapshot{RecordAudio: true, RecordVideo: true})
	if err := r.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.orch.Stop()

	waitFor(t, "recording start", func() bool { return len(r.ev.Starts()) == 1 })
	if starts := r.ev.Starts(); starts[0] != evidence.ModeVideo {
		t.Errorf("mode = %s, want video", starts[0])
	}
	if r.ev.Active() != 1 {
		t.Errorf("active sessions = %d, want 1", r.ev.Active())
	}
}

func TestRecordingRestartsOnModeChange(t *testing.T) {
	r := newRig(t, settings.Snapshot{RecordAudio: true})
	if err := r.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.orch.Stop()

	waitFor(t, "audio start", func() bool { return len(r.ev.Starts()) == 1 })

	r.set.emit(settings.Snapshot{RecordAudio: true, RecordVideo: true})
	waitFor(t, "video restart", func() bool {
		starts := r.ev.Starts()
		return len(starts) == 2 && starts[1] == evidence.ModeVideo
	})
	if r.ev.Active() != 1 {
		t.Errorf("active sessions = %d, want 1", r.ev.Active())
	}
}

func TestSMSEnabledMidRunLeavesLocationAlone(t *testing.T) {
	r := newRig(t, settings.Snapshot{ShareLocation: true})
	if err := r.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.orch.Stop()

	waitFor(t, "one-shot location", func() bool {
		return strings.Contains(strings.Join(r.activity.Descriptions(), "\n"), "Location acquired: Westminster")
	})

	r.set.emit(settings.Snapshot{ShareLocation: true, SendSMS: true})
	waitFor(t, "sms fan-out", func() bool { return len(r.sender.Sent()) >= 1 })

	// The one-shot location task ran exactly once.
	acquired := 0
	for _, d := range r.activity.Descriptions() {
		if strings.HasPrefix(d, "Location acquired:") {
			acquired++
		}
	}
	if acquired != 1 {
		t.Errorf("one-shot location ran %d times, want 1", acquired)
	}
}

func TestNoContactsReportedOncePerRun(t *testing.T) {
	r := newRig(t, settings.Snapshot{SendSMS: true})
	r.orch.contacts = fakeContacts{}
	if err := r.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.orch.Stop()

	noContacts := func() int {
		n := 0
		for _, d := range r.activity.Descriptions() {
			if d == "No emergency contacts configured, SMS not sent" {
				n++
			}
		}
		return n
	}

	waitFor(t, "no-contacts report", func() bool { return noContacts() == 1 })

	// Many more location updates land; the entry must not repeat.
	time.Sleep(60 * time.Millisecond)
	if got := noContacts(); got != 1 {
		t.Errorf("no-contacts reported %d times, want 1", got)
	}
	if got := len(r.sender.Sent()); got != 0 {
		t.Errorf("submitted %d messages without contacts", got)
	}
}

func TestCommunityAlertPublishedOncePerRun(t *testing.T) {
	r := newRig(t, settings.Snapshot{ShareLocation: true})
	if err := r.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "community publish", func() bool { return len(r.pub.Alerts()) == 1 })

	r.set.emit(settings.Snapshot{ShareLocation: true, SendSMS: true})
	waitFor(t, "sms fan-out", func() bool { return len(r.sender.Sent()) >= 1 })
	r.orch.Stop()

	alerts := r.pub.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("published %d alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Username != "sam" || a.LocationText != "Westminster" || a.Latitude != 51.5 {
		t.Errorf("alert = %+v", a)
	}
	if a.Resolved {
		t.Error("new alert must not be resolved")
	}
}

func TestStopWaitsForTasksAndLogsLast(t *testing.T) {
	r := newRig(t, settings.Snapshot{RecordVideo: true, SendSMS: true})
	if err := r.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "recording start", func() bool { return r.ev.Active() == 1 })

	r.orch.Stop()

	if r.ev.Active() != 0 {
		t.Error("recording still active after Stop returned")
	}
	descs := r.activity.Descriptions()
	if len(descs) == 0 || descs[len(descs)-1] != "All emergency operations stopped" {
		t.Errorf("final entry = %v", descs)
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	r := newRig(t, settings.Snapshot{})
	r.orch.Stop()
	if got := len(r.activity.Descriptions()); got != 0 {
		t.Errorf("stop without start appended %d entries", got)
	}
}

func TestStartTwiceIsOneRun(t *testing.T) {
	r := newRig(t, settings.Snapshot{RecordAudio: true})
	if err := r.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.orch.Stop()
	if err := r.orch.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	waitFor(t, "recording start", func() bool { return len(r.ev.Starts()) >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := len(r.ev.Starts()); got != 1 {
		t.Errorf("recording spawned %d times, want 1", got)
	}
	if got := len(r.pub.Alerts()); got != 1 {
		t.Errorf("published %d alerts, want 1", got)
	}

	triggered := 0
	for _, d := range r.activity.Descriptions() {
		if d == "SOS triggered" {
			triggered++
		}
	}
	if triggered != 1 {
		t.Errorf("SOS triggered logged %d times, want 1", triggered)
	}
}

func TestLocationFailureReportedNotFatal(t *testing.T) {
	r := newRig(t, settings.Snapshot{ShareLocation: true, RecordAudio: true})
	r.provider.FailCurrent(location.ErrNoFix)
	if err := r.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.orch.Stop()

	waitFor(t, "location failure report", func() bool {
		return strings.Contains(strings.Join(r.activity.Descriptions(), "\n"), "Location unavailable")
	})
	// Recording proceeds regardless.
	waitFor(t, "recording start", func() bool { return len(r.ev.Starts()) == 1 })
	// Community alert still goes out, downgraded to a placeholder.
	waitFor(t, "community publish", func() bool { return len(r.pub.Alerts()) == 1 })
	if got := r.pub.Alerts()[0].LocationText; got != location.Placeholder {
		t.Errorf("LocationText = %q, want placeholder", got)
	}
}

type fakeSurface struct {
	mu     sync.Mutex
	titles []string
}

func (f *fakeSurface) ShowOngoing(title, body string, actions []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
}

func (f *fakeSurface) Titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.titles...)
}

func TestAutoCallSurfacesOnce(t *testing.T) {
	r := newRig(t, settings.Snapshot{AutoCall: true, SelectedContactID: "1"})
	surface := &fakeSurface{}
	r.orch.Surface = surface
	if err := r.orch.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.orch.Stop()

	waitFor(t, "call status card", func() bool { return len(surface.Titles()) == 1 })

	// Re-emitting the same snapshot must not re-surface the card.
	r.set.emit(settings.Snapshot{AutoCall: true, SelectedContactID: "1"})
	waitFor(t, "reconciliation applied", func() bool {
		n := 0
		for _, d := range r.activity.Descriptions() {
			if strings.HasPrefix(d, "Response channels reconciled") {
				n++
			}
		}
		return n >= 2
	})
	if got := len(surface.Titles()); got != 1 {
		t.Errorf("call card surfaced %d times, want 1", got)
	}

	requested := 0
	for _, d := range r.activity.Descriptions() {
		if d == "Emergency call requested" {
			requested++
		}
	}
	if requested != 1 {
		t.Errorf("call requested logged %d times, want 1", requested)
	}
}

func TestDiffActions(t *testing.T) {
	cases := []struct {
		name string
		prev desired
		next desired
		want map[Channel]Action
	}{
		{
			name: "all off to all on",
			prev: desired{},
			next: desired{location: true, sms: true, recording: evidence.ModeVideo},
			want: map[Channel]Action{ChannelLocation: Start, ChannelSMS: Start, ChannelRecording: Start},
		},
		{
			name: "identical",
			prev: desired{location: true, recording: evidence.ModeAudio},
			next: desired{location: true, recording: evidence.ModeAudio},
			want: map[Channel]Action{ChannelLocation: Unchanged, ChannelSMS: Unchanged, ChannelRecording: Unchanged},
		},
		{
			name: "mode change restarts recording",
			prev: desired{recording: evidence.ModeAudio},
			next: desired{recording: evidence.ModeVideo},
			want: map[Channel]Action{ChannelLocation: Unchanged, ChannelSMS: Unchanged, ChannelRecording: Restart},
		},
		{
			name: "recording off",
			prev: desired{recording: evidence.ModeVideo},
			next: desired{},
			want: map[Channel]Action{ChannelLocation: Unchanged, ChannelSMS: Unchanged, ChannelRecording: Stop},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := diff(tc.prev, tc.next)
			for ch, want := range tc.want {
				if got[ch] != want {
					t.Errorf("%s: got %s, want %s", ch, got[ch], want)
				}
			}
		})
	}
}

func TestDesiredOfVideoPriority(t *testing.T) {
	d := desiredOf(settings.Snapshot{RecordAudio: true, RecordVideo: true})
	if d.recording != evidence.ModeVideo {
		t.Errorf("recording = %s, want video", d.recording)
	}
	d = desiredOf(settings.Snapshot{RecordAudio: true})
	if d.recording != evidence.ModeAudio {
		t.Errorf("recording = %s, want audio", d.recording)
	}
	d = desiredOf(settings.Snapshot{})
	if d.recording != "" {
		t.Errorf("recording = %s, want off", d.recording)
	}
}
