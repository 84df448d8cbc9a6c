// Package shell bridges the daemon and the mobile shell over a local
// WebSocket. The shell forwards lock-screen press events, user gestures
// and GPS fixes inbound; the daemon pushes alert surfaces outbound. A
// small REST API serves the shell's read-only screens.
package shell

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/lumasafe/guardian/internal/log"
	"github.com/lumasafe/guardian/pkg/community"
	"github.com/lumasafe/guardian/pkg/evidence"
	"github.com/lumasafe/guardian/pkg/location"
	"github.com/lumasafe/guardian/pkg/protocol"
	"github.com/lumasafe/guardian/pkg/settings"
	"github.com/lumasafe/guardian/pkg/store"
	"github.com/lumasafe/guardian/pkg/trigger"
)

// Contacts is the contact CRUD surface exposed over the REST API.
type Contacts interface {
	List() []store.Contact
	Add(name, phoneNumber string) (store.Contact, error)
	Remove(id string) error
}

// Settings is the settings surface exposed over the REST API.
type Settings interface {
	Get() settings.Snapshot
	Set(mutate func(*settings.Snapshot)) error
}

// AlertFeed serves the community screen.
type AlertFeed interface {
	Recent(ctx context.Context, n int) ([]community.Alert, error)
}

// Deps are the collaborators the bridge exposes to the shell.
type Deps struct {
	Activity  store.ActivityLog
	Contacts  Contacts
	Settings  Settings
	Community AlertFeed
	// Session reports the active recording session, if any.
	Session func() (evidence.Session, bool)
}

// Bridge is the daemon side of the shell connection.
type Bridge struct {
	app    *fiber.App
	listen string
	deps   Deps
	logger *slog.Logger

	// OnPress receives every lock-screen press event from the shell.
	OnPress func(kind protocol.PressKind)
	// OnCommand receives user gestures on daemon surfaces.
	OnCommand func(cmd protocol.CommandData)

	mu      sync.Mutex
	clients map[*client]bool
	// ongoing is replayed to shells that connect while a response is
	// active, so a restarted shell still shows the status card.
	ongoing *protocol.Message

	fixMu   sync.Mutex
	fix     *location.Fix
	fixWait chan struct{}
}

var (
	_ trigger.AlertSurface = (*Bridge)(nil)
	_ location.Provider    = (*Bridge)(nil)
)

// NewBridge builds the bridge server on the given listen address.
func NewBridge(listen string, deps Deps) *Bridge {
	b := &Bridge{
		listen:  listen,
		deps:    deps,
		logger:  log.Component("shell"),
		clients: make(map[*client]bool),
		fixWait: make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "guardiand bridge",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/activity", b.handleActivity)
	api.Get("/contacts", b.handleListContacts)
	api.Post("/contacts", b.handleAddContact)
	api.Delete("/contacts/:id", b.handleRemoveContact)
	api.Get("/settings", b.handleGetSettings)
	api.Put("/settings", b.handlePutSettings)
	api.Get("/session", b.handleSession)
	api.Get("/community", b.handleCommunity)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/bridge", websocket.New(b.handleBridgeWS))

	b.app = app
	return b
}

// Start serves the bridge. Blocks until Shutdown.
func (b *Bridge) Start() error {
	b.logger.Info("shell bridge listening", "addr", b.listen)
	return b.app.Listen(b.listen)
}

// Shutdown stops the server and drops all shell connections.
func (b *Bridge) Shutdown() error {
	return b.app.Shutdown()
}

func (b *Bridge) handleBridgeWS(conn *websocket.Conn) {
	c := newClient(b, conn)

	b.mu.Lock()
	b.clients[c] = true
	if b.ongoing != nil {
		c.enqueue(b.ongoing)
	}
	count := len(b.clients)
	b.mu.Unlock()
	b.logger.Info("shell connected", "clients", count)

	c.run()
}

func (b *Bridge) unregister(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	count := len(b.clients)
	b.mu.Unlock()
	b.logger.Info("shell disconnected", "clients", count)
}

// handleInbound dispatches one message from a shell.
func (b *Bridge) handleInbound(c *client, raw []byte) {
	msg, err := protocol.ParseMessage(raw)
	if err != nil {
		b.logger.Warn("malformed bridge message", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypePress:
		data, err := msg.GetPressData()
		if err != nil {
			b.logger.Warn("bad press message", "error", err)
			return
		}
		if b.OnPress != nil {
			b.OnPress(data.Kind)
		}

	case protocol.TypeCommand:
		data, err := msg.GetCommandData()
		if err != nil {
			b.logger.Warn("bad command message", "error", err)
			return
		}
		if b.OnCommand != nil {
			b.OnCommand(*data)
		}

	case protocol.TypeLocation:
		data, err := msg.GetLocationData()
		if err != nil {
			b.logger.Warn("bad location message", "error", err)
			return
		}
		b.setFix(location.Fix{
			Latitude:  data.Latitude,
			Longitude: data.Longitude,
			Time:      time.Now(),
		})

	case protocol.TypePing:
		var ping protocol.PingData
		if err := msg.ParseData(&ping); err != nil {
			return
		}
		now := time.Now().UnixMilli()
		pong, err := protocol.NewMessage(protocol.TypePong, protocol.PongData{
			ID:        ping.ID,
			PingTS:    ping.Timestamp,
			PongTS:    now,
			LatencyMs: now - ping.Timestamp,
		})
		if err == nil {
			c.enqueue(pong)
		}

	default:
		b.logger.Warn("unexpected bridge message", "type", msg.Type)
	}
}

func (b *Bridge) broadcast(msg *protocol.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		if !c.enqueue(msg) {
			b.logger.Warn("dropped message to slow shell")
		}
	}
}

// ShowConfirm pushes the drag-to-confirm surface to every shell.
func (b *Bridge) ShowConfirm(title, body string, timeout time.Duration, trackThreshold float64) {
	msg, err := protocol.NewConfirmMessage(title, body, timeout.Milliseconds(), trackThreshold)
	if err != nil {
		return
	}
	b.broadcast(msg)
}

// ShowUrgent pushes a bypass-quiet-hours alert.
func (b *Bridge) ShowUrgent(title, body string) {
	msg, err := protocol.NewAlertMessage(title, body)
	if err != nil {
		return
	}
	b.broadcast(msg)
}

// ShowOngoing pushes or updates the ongoing-response status card.
func (b *Bridge) ShowOngoing(title, body string, actions []string) {
	msg, err := protocol.NewStatusMessage(title, body, actions)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.ongoing = msg
	b.mu.Unlock()
	b.broadcast(msg)
}

// ClearOngoing takes the status card down.
func (b *Bridge) ClearOngoing() {
	msg, err := protocol.NewClearMessage()
	if err != nil {
		return
	}
	b.mu.Lock()
	b.ongoing = nil
	b.mu.Unlock()
	b.broadcast(msg)
}

// setFix stores the latest shell GPS fix and wakes Current waiters.
func (b *Bridge) setFix(fix location.Fix) {
	b.fixMu.Lock()
	b.fix = &fix
	close(b.fixWait)
	b.fixWait = make(chan struct{})
	b.fixMu.Unlock()
}

// Current returns the latest shell fix, waiting for the first one if
// none has arrived yet.
func (b *Bridge) Current(ctx context.Context) (location.Fix, error) {
	b.fixMu.Lock()
	if b.fix != nil {
		fix := *b.fix
		b.fixMu.Unlock()
		return fix, nil
	}
	wait := b.fixWait
	b.fixMu.Unlock()

	select {
	case <-ctx.Done():
		return location.Fix{}, ctx.Err()
	case <-wait:
		return b.Current(ctx)
	}
}

// Watch emits the latest fix every interval while one is known.
func (b *Bridge) Watch(ctx context.Context, interval time.Duration) (<-chan location.Fix, error) {
	out := make(chan location.Fix)
	go func() {
		defer close(out)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			b.fixMu.Lock()
			fix := b.fix
			b.fixMu.Unlock()
			if fix == nil {
				continue
			}
			select {
			case out <- *fix:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// REST handlers

func (b *Bridge) handleActivity(c *fiber.Ctx) error {
	n, err := strconv.Atoi(c.Query("n", "50"))
	if err != nil || n < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid n")
	}
	entries, err := b.deps.Activity.Recent(n)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(entries)
}

func (b *Bridge) handleListContacts(c *fiber.Ctx) error {
	return c.JSON(b.deps.Contacts.List())
}

func (b *Bridge) handleAddContact(c *fiber.Ctx) error {
	var in struct {
		Name        string `json:"name"`
		PhoneNumber string `json:"phone_number"`
	}
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if in.Name == "" || in.PhoneNumber == "" {
		return fiber.NewError(fiber.StatusBadRequest, "name and phone_number are required")
	}
	contact, err := b.deps.Contacts.Add(in.Name, in.PhoneNumber)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(contact)
}

func (b *Bridge) handleRemoveContact(c *fiber.Ctx) error {
	if err := b.deps.Contacts.Remove(c.Params("id")); err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (b *Bridge) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(b.deps.Settings.Get())
}

func (b *Bridge) handlePutSettings(c *fiber.Ctx) error {
	var in settings.Snapshot
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := b.deps.Settings.Set(func(s *settings.Snapshot) { *s = in }); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(b.deps.Settings.Get())
}

func (b *Bridge) handleSession(c *fiber.Ctx) error {
	session, ok := b.deps.Session()
	if !ok {
		return c.JSON(fiber.Map{"active": false})
	}
	return c.JSON(fiber.Map{"active": true, "session": session})
}

func (b *Bridge) handleCommunity(c *fiber.Ctx) error {
	n, err := strconv.Atoi(c.Query("n", "20"))
	if err != nil || n < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid n")
	}
	alerts, err := b.deps.Community.Recent(c.Context(), n)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(alerts)
}
