// guardiand is the personal-safety daemon: it watches for the emergency
// press pattern, asks for confirmation, and orchestrates the response
// channels (location, SMS, evidence recording, community alert).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumasafe/guardian/internal/config"
	"github.com/lumasafe/guardian/internal/log"
	"github.com/lumasafe/guardian/pkg/community"
	"github.com/lumasafe/guardian/pkg/dispatch"
	"github.com/lumasafe/guardian/pkg/evidence"
	"github.com/lumasafe/guardian/pkg/location"
	"github.com/lumasafe/guardian/pkg/protocol"
	"github.com/lumasafe/guardian/pkg/response"
	"github.com/lumasafe/guardian/pkg/settings"
	"github.com/lumasafe/guardian/pkg/shell"
	"github.com/lumasafe/guardian/pkg/store"
	"github.com/lumasafe/guardian/pkg/trigger"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "guardiand",
		Short:         "Personal safety emergency response daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath)
		},
	}
	serve.Flags().StringVarP(&cfgPath, "config", "c", "", "path to guardian.yaml")
	root.AddCommand(serve)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("guardiand", version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "guardiand:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log.Init(cfg.LogLevel)
	logger := log.Component("daemon")
	logger.Info("guardiand starting", "version", version, "data_dir", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Durable state
	counter, err := store.NewFileCounterStore(filepath.Join(cfg.DataDir, "press_counter.json"))
	if err != nil {
		return fmt.Errorf("open press counter: %w", err)
	}
	contacts, err := store.NewContactStore(filepath.Join(cfg.DataDir, "contacts.json"))
	if err != nil {
		return fmt.Errorf("open contacts: %w", err)
	}
	activity, err := store.NewFileActivityLog(filepath.Join(cfg.DataDir, "activity.jsonl"))
	if err != nil {
		return fmt.Errorf("open activity log: %w", err)
	}
	set, err := settings.NewStore(filepath.Join(cfg.DataDir, "settings.json"))
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	if err := set.Watch(); err != nil {
		logger.Warn("settings file watch unavailable", "error", err)
	}
	defer set.Close()

	// Evidence capture
	video := evidence.NewCameraRecorder(evidence.CameraConfig{
		Device: cfg.Evidence.CameraDevice,
		Width:  cfg.Evidence.VideoWidth,
		Height: cfg.Evidence.VideoHeight,
		FPS:    cfg.Evidence.VideoFPS,
	})
	micCfg := evidence.MicConfig{SampleRate: cfg.Evidence.AudioSampleRate}
	audio := evidence.NewMicRecorder(micCfg, evidence.OpenALSA(cfg.Evidence.AudioDevice, micCfg))
	capture := evidence.New(evidence.Config{
		Dir:                cfg.Evidence.Dir,
		SessionDuration:    cfg.Evidence.SessionDuration,
		SessionCooldown:    cfg.Evidence.SessionCooldown,
		AudioRetryBackoff:  cfg.Evidence.AudioRetryBackoff,
		VideoStartAttempts: cfg.Evidence.VideoStartAttempts,
	}, video, audio, activity)

	// Outbound channels
	geocoder := location.NewHTTPGeocoder(cfg.Location.GeocodeURL)
	dispatcher := dispatch.New(dispatch.NewGatewaySender(cfg.SMS.GatewayURL, cfg.SMS.Token), activity)
	alerts := community.NewClient(community.Config{
		BaseURL:      cfg.Community.BaseURL,
		TokenURL:     cfg.Community.TokenURL,
		ClientID:     cfg.Community.ClientID,
		ClientSecret: cfg.Community.ClientSecret,
	})

	// Shell bridge: event source, alert surface and GPS provider
	bridge := shell.NewBridge(cfg.Listen, shell.Deps{
		Activity:  activity,
		Contacts:  contacts,
		Settings:  set,
		Community: alerts,
		Session:   capture.Session,
	})

	orch := response.New(response.Config{
		FetchTimeout:   cfg.Location.FetchTimeout,
		GeocodeTimeout: cfg.Location.GeocodeTimeout,
		UpdateInterval: cfg.Location.UpdateInterval,
		StopGrace:      cfg.Trigger.StopGrace,
		Profile: response.Profile{
			UserID:   cfg.Profile.UserID,
			Username: cfg.Profile.Username,
			Contact:  cfg.Profile.Contact,
		},
	}, set, bridge, geocoder, dispatcher, contacts, alerts, capture, activity)
	orch.Surface = bridge

	machine := trigger.NewMachine(trigger.NopWakeLock{}, bridge, orch,
		cfg.Trigger.ConfirmTimeout, cfg.Trigger.ConfirmTrackThreshold)
	detector := trigger.NewDetector(counter, cfg.Trigger.PressCount, cfg.Trigger.PressWindow)

	bridge.OnPress = func(kind protocol.PressKind) {
		ev := trigger.PressEvent{Kind: trigger.EventKind(kind), Time: time.Now()}
		fired, err := detector.OnEvent(ev)
		if err != nil {
			logger.Warn("press event processed with persistence error", "error", err)
		}
		if fired {
			machine.OnTrigger()
		}
	}
	bridge.OnCommand = func(cmd protocol.CommandData) {
		switch cmd.Action {
		case protocol.ActionConfirm:
			machine.Confirm(cmd.Track)
		case protocol.ActionCancel:
			machine.Cancel()
		case protocol.ActionStop:
			// Stop blocks for the grace period; never stall the read pump.
			go machine.Stop()
		default:
			logger.Warn("unknown command action", "action", cmd.Action)
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- bridge.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("shell bridge: %w", err)
		}
		return nil
	}

	machine.Stop()
	if err := bridge.Shutdown(); err != nil {
		logger.Warn("bridge shutdown", "error", err)
	}
	logger.Info("guardiand stopped")
	return nil
}
