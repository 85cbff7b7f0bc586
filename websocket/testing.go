package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadrant/models"
	"github.com/aukilabs/quadrant/quadtree"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// TestingEnv is a websocket server hosting a single world, used to unit test
// handlers.
type TestingEnv struct {
	Worlds *models.WorldStore
	World  *models.World

	server *httptest.Server
}

// Creates a testing environment serving the handlers returned by newHandler.
func NewTestingEnv(t *testing.T, newHandler func(*models.WorldStore) Handler) *TestingEnv {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	worlds := &models.WorldStore{}
	world, err := worlds.Create(models.WorldConfig{
		Bounds:     quadtree.Rect{Width: 100, Height: 100},
		MaxLevel:   2,
		MaxObjects: 1,
	}, time.Millisecond*20)
	if err != nil {
		t.Fatalf("error creating world: %s", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /worlds/{id}/ws", websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler(worlds)
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	env := &TestingEnv{
		Worlds: worlds,
		World:  world,
		server: httptest.NewServer(mux),
	}

	t.Cleanup(func() {
		mutex.Lock()
		logger = nil
		mutex.Unlock()

		env.server.Close()
		worlds.Close()
	})
	return env
}

// Dial connects a client to the given world.
func (e *TestingEnv) Dial(t *testing.T, worldID uint32) *websocket.Conn {
	config, err := websocket.NewConfig(
		fmt.Sprintf("%s/worlds/%d/ws", strings.ReplaceAll(e.server.URL, "http://", "ws://"), worldID),
		"http://localhost",
	)
	if err != nil {
		t.Fatalf("error initializing web socket: %s", err)
	}

	config.Header.Set("User-Agent", "ted")
	config.Header.Set("X-Forwarded-For", "192.0.0.0")
	config.Header.Set(HeaderClientID, "test-client")

	conn, err := websocket.DialConfig(config)
	if err != nil {
		t.Fatalf("error dialing web socket: %s", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

func newTestHandler(idleTimeout time.Duration) func(*models.WorldStore) Handler {
	return func(worlds *models.WorldStore) Handler {
		var h Handler = &RealtimeHandler{
			ClientIdleTimeout: idleTimeout,
			Worlds:            worlds,
		}

		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, "https://quadrant-test.com")
		return h
	}
}
