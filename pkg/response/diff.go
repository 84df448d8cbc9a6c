package response

import (
	"github.com/lumasafe/guardian/pkg/evidence"
	"github.com/lumasafe/guardian/pkg/settings"
)

// Channel is one independently enable/disable-able response capability.
type Channel string

const (
	ChannelLocation  Channel = "location"
	ChannelSMS       Channel = "sms"
	ChannelRecording Channel = "recording"
	ChannelCommunity Channel = "community"
)

// Action is the reconciliation verb for one channel.
type Action int

const (
	Unchanged Action = iota
	Start
	Stop
	Restart
)

func (a Action) String() string {
	switch a {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Restart:
		return "restart"
	default:
		return "unchanged"
	}
}

// desired is the decoded channel state for one settings snapshot.
// recording is "" when neither record flag is set; video wins when
// both are.
type desired struct {
	location  bool
	sms       bool
	recording evidence.Mode
}

func desiredOf(s settings.Snapshot) desired {
	d := desired{
		location: s.ShareLocation,
		sms:      s.SendSMS,
	}
	switch {
	case s.RecordVideo:
		d.recording = evidence.ModeVideo
	case s.RecordAudio:
		d.recording = evidence.ModeAudio
	}
	return d
}

// diff compares two desired states and yields one action per
// reconcilable channel. Identical states yield only Unchanged, which
// is what makes repeated reconciliation idempotent.
func diff(prev, next desired) map[Channel]Action {
	actions := map[Channel]Action{
		ChannelLocation:  flagAction(prev.location, next.location),
		ChannelSMS:       flagAction(prev.sms, next.sms),
		ChannelRecording: Unchanged,
	}
	switch {
	case prev.recording == next.recording:
	case prev.recording == "":
		actions[ChannelRecording] = Start
	case next.recording == "":
		actions[ChannelRecording] = Stop
	default:
		actions[ChannelRecording] = Restart
	}
	return actions
}

func flagAction(prev, next bool) Action {
	switch {
	case !prev && next:
		return Start
	case prev && !next:
		return Stop
	default:
		return Unchanged
	}
}
