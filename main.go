package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/murmur-app/murmur/audio"
	"github.com/murmur-app/murmur/config"
	"github.com/murmur-app/murmur/model"
	"github.com/murmur-app/murmur/notify"
	"github.com/murmur-app/murmur/session"
	"github.com/murmur-app/murmur/store"
)

type startRequest struct {
	ID            string   `json:"id"`
	MicDevice     string   `json:"mic_device"`
	SpeakerDevice string   `json:"speaker_device"`
	Languages     []string `json:"languages"`
	Record        bool     `json:"record"`
	Onboarding    bool     `json:"onboarding"`
}

type muteRequest struct {
	Mic     *bool `json:"mic"`
	Speaker *bool `json:"speaker"`
}

type deviceRequest struct {
	MicDevice string `json:"mic_device"`
}

type stateResponse struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
}

// hub fans controller notices out to every connected /events client.
type hub struct {
	mu   sync.Mutex
	subs map[chan session.Notice]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan session.Notice]struct{})}
}

func (h *hub) subscribe() chan session.Notice {
	ch := make(chan session.Notice, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan session.Notice) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *hub) publish(n session.Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- n:
		default:
			// a stalled client loses notices, never stalls the rest
		}
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("configuration invalid")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := portaudio.Initialize(); err != nil {
		logrus.WithError(err).Fatal("portaudio initialization failed")
	}
	defer portaudio.Terminate()

	st, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		logrus.WithError(err).Fatal("store initialization failed")
	}

	notifier := notify.New(cfg.Notifications)
	ctrl := session.NewController(session.Config{
		Connection: model.Connection{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		},
		RedemptionMS:           cfg.RedemptionMS,
		OnboardingRedemptionMS: cfg.OnboardingRedemptionMS,
		RecordDir:              cfg.RecordDir,
		Store:                  st,
		Notifier:               notifier.Send,
	})
	defer ctrl.Close()

	events := newHub()
	go func() {
		for n := range ctrl.Notices() {
			events.publish(n)
		}
	}()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Post("/session/start", func(c *fiber.Ctx) error {
		var req startRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		langs := req.Languages
		if len(langs) == 0 {
			langs = cfg.Languages
		}
		ctrl.Dispatch(session.Start{Params: model.SessionParams{
			ID:            req.ID,
			MicDevice:     req.MicDevice,
			SpeakerDevice: req.SpeakerDevice,
			Languages:     langs,
			RecordEnabled: req.Record,
			Onboarding:    req.Onboarding,
		}})
		return c.JSON(fiber.Map{"session_id": req.ID})
	})

	app.Post("/session/stop", func(c *fiber.Ctx) error {
		ctrl.Dispatch(session.Stop{})
		return c.SendStatus(fiber.StatusAccepted)
	})

	app.Post("/session/pause", func(c *fiber.Ctx) error {
		ctrl.Dispatch(session.Pause{})
		return c.SendStatus(fiber.StatusAccepted)
	})

	app.Post("/session/resume", func(c *fiber.Ctx) error {
		ctrl.Dispatch(session.Resume{})
		return c.SendStatus(fiber.StatusAccepted)
	})

	app.Post("/session/mute", func(c *fiber.Ctx) error {
		var req muteRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		if req.Mic != nil {
			ctrl.Dispatch(session.MicMuted{Muted: *req.Mic})
		}
		if req.Speaker != nil {
			ctrl.Dispatch(session.SpeakerMuted{Muted: *req.Speaker})
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	app.Post("/session/device", func(c *fiber.Ctx) error {
		var req deviceRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
		}
		ctrl.Dispatch(session.MicChange{Device: req.MicDevice})
		return c.SendStatus(fiber.StatusAccepted)
	})

	app.Get("/session", func(c *fiber.Ctx) error {
		state, id := ctrl.State()
		return c.JSON(stateResponse{State: state.String(), SessionID: id})
	})

	app.Get("/sessions/:id", func(c *fiber.Ctx) error {
		rec, ok, err := st.GetSession(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
		}
		return c.JSON(rec)
	})

	app.Get("/devices", func(c *fiber.Ctx) error {
		devices, err := audio.ListDevices()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(devices)
	})

	app.Use("/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/events", websocket.New(func(ws *websocket.Conn) {
		defer ws.Close()
		sub := events.subscribe()
		defer events.unsubscribe(sub)

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case n := <-sub:
				payload, err := json.Marshal(n)
				if err != nil {
					continue
				}
				if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}
	}))

	go func() {
		logrus.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := app.Listen(cfg.ListenAddr); err != nil {
			logrus.WithError(err).Fatal("server stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logrus.Info("shutting down")
	_ = app.Shutdown()
}
