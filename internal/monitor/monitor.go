// Package monitor exposes a small Fiber HTTP server with a health check, a
// Prometheus scrape endpoint, and a websocket feed that pushes ring
// occupancy snapshots to connected watchers (see cmd/llq-watch).
package monitor

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lowlatency/llq/internal/config"
	"github.com/lowlatency/llq/internal/ringstate"
)

// StatsProvider is anything that can report a point-in-time occupancy
// snapshot. *avllq.Queue and *fdring.Ring both satisfy it.
type StatsProvider interface {
	Stats() ringstate.Stats
}

// Snapshot is one named queue's stats, as pushed over /ws/stats.
type Snapshot struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Consumers int    `json:"consumers"`
}

// Server is the monitor's Fiber app plus the set of queues it reports on.
type Server struct {
	app  *fiber.App
	cfg  config.MonitorConfig
	reg  *prometheus.Registry

	mu        sync.RWMutex
	providers map[string]StatsProvider
}

// New builds a monitor server bound to cfg.ListenAddr once Listen is
// called, scraping reg for /metrics.
func New(cfg config.MonitorConfig, reg *prometheus.Registry) *Server {
	s := &Server{
		app:       fiber.New(fiber.Config{DisableStartupMessage: true}),
		cfg:       cfg,
		reg:       reg,
		providers: make(map[string]StatsProvider),
	}
	s.routes()
	return s
}

// Register associates name with a provider whose Stats() will be included
// in /ws/stats snapshots. /healthz does not consult providers.
func (s *Server) Register(name string, p StatsProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[name] = p
}

func (s *Server) routes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})))

	s.app.Use("/ws/stats", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("sessionID", uuid.NewString())
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/stats", websocket.New(s.handleWatch))
}

func (s *Server) handleWatch(conn *websocket.Conn) {
	sessionID, _ := conn.Locals("sessionID").(string)
	log.Printf("monitor: watcher %s connected", sessionID)
	defer log.Printf("monitor: watcher %s disconnected", sessionID)
	defer conn.Close()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for range ticker.C {
		payload, err := json.Marshal(s.snapshot())
		if err != nil {
			log.Printf("monitor: watcher %s: marshal snapshot: %v", sessionID, err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (s *Server) snapshot() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, 0, len(s.providers))
	for name, p := range s.providers {
		st := p.Stats()
		out = append(out, Snapshot{Queue: name, Size: st.Size, Capacity: st.Capacity, Consumers: st.Consumers})
	}
	return out
}

// Listen blocks serving on cfg.ListenAddr until the server is shut down.
func (s *Server) Listen() error {
	if err := s.app.Listen(s.cfg.ListenAddr); err != nil {
		return fmt.Errorf("monitor: listen %s: %w", s.cfg.ListenAddr, err)
	}
	return nil
}

// Shutdown stops the Fiber app.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
