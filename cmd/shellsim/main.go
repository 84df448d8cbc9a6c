// shellsim simulates the mobile shell against a running guardiand: it
// connects to the bridge, replays a press pattern, confirms the
// prompt, streams fake GPS fixes, and prints every surface the daemon
// pushes. Useful for exercising the full trigger-to-response path
// without a phone.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/lumasafe/guardian/internal/log"
	"github.com/lumasafe/guardian/pkg/protocol"
)

type options struct {
	addr     string
	presses  int
	gap      time.Duration
	track    float64
	lat, lon float64
	runFor   time.Duration
}

func main() {
	var opts options
	root := &cobra.Command{
		Use:           "shellsim",
		Short:         "Simulate the mobile shell against guardiand",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	root.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:8787", "guardiand bridge address")
	root.Flags().IntVar(&opts.presses, "presses", 3, "screen-off presses to send")
	root.Flags().DurationVar(&opts.gap, "gap", 400*time.Millisecond, "gap between presses")
	root.Flags().Float64Var(&opts.track, "track", 1.0, "drag fraction sent on confirm")
	root.Flags().Float64Var(&opts.lat, "lat", 51.5014, "simulated latitude")
	root.Flags().Float64Var(&opts.lon, "lon", -0.1276, "simulated longitude")
	root.Flags().DurationVar(&opts.runFor, "run-for", 30*time.Second, "how long to run before sending stop")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "shellsim:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	log.Init("info")
	logger := log.Component("shellsim")

	url := "ws://" + opts.addr + "/ws/bridge"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()
	logger.Info("connected", "url", url)

	send := func(msg *protocol.Message, buildErr error) error {
		if buildErr != nil {
			return buildErr
		}
		payload, err := msg.Bytes()
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	// Reader: print every daemon surface, auto-confirm the prompt.
	confirmed := make(chan struct{}, 1)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				logger.Info("connection closed", "error", err)
				return
			}
			msg, err := protocol.ParseMessage(raw)
			if err != nil {
				logger.Warn("unparseable message", "error", err)
				continue
			}
			switch msg.Type {
			case protocol.TypeConfirm:
				req, err := msg.GetConfirmRequest()
				if err != nil {
					continue
				}
				logger.Info("confirmation surface", "title", req.Title, "timeout_ms", req.TimeoutMs)
				if err := send(protocol.NewCommandMessage(protocol.ActionConfirm, opts.track)); err != nil {
					logger.Error("confirm failed", "error", err)
					return
				}
				select {
				case confirmed <- struct{}{}:
				default:
				}
			case protocol.TypeAlert:
				data, _ := msg.GetAlertData()
				logger.Info("urgent alert", "title", data.Title, "body", data.Body)
			case protocol.TypeStatus:
				data, _ := msg.GetStatusData()
				logger.Info("status card", "title", data.Title, "body", data.Body, "actions", data.Actions)
			case protocol.TypeClear:
				logger.Info("status card cleared")
			}
		}
	}()

	// Stream GPS fixes for the daemon's location provider.
	fixDone := make(chan struct{})
	go func() {
		t := time.NewTicker(2 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-fixDone:
				return
			case <-t.C:
				if err := send(protocol.NewLocationMessage(opts.lat, opts.lon)); err != nil {
					return
				}
			}
		}
	}()
	defer close(fixDone)

	// Send one fix up front so a one-shot fetch has something to read.
	if err := send(protocol.NewLocationMessage(opts.lat, opts.lon)); err != nil {
		return err
	}

	logger.Info("sending press pattern", "presses", opts.presses, "gap", opts.gap)
	for i := 0; i < opts.presses; i++ {
		if i > 0 {
			time.Sleep(opts.gap)
		}
		if err := send(protocol.NewPressMessage(protocol.PressScreenOff)); err != nil {
			return fmt.Errorf("send press: %w", err)
		}
	}

	select {
	case <-confirmed:
		logger.Info("response confirmed")
	case <-time.After(10 * time.Second):
		return fmt.Errorf("no confirmation surface within 10s")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-time.After(opts.runFor):
	case <-sigCh:
	}

	logger.Info("sending stop")
	if err := send(protocol.NewCommandMessage(protocol.ActionStop, 0)); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}
	// Give the daemon a moment to clear the status card before hanging up.
	time.Sleep(2 * time.Second)
	return nil
}
