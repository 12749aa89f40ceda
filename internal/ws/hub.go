package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/hd108/model"
)

// Hub pushes decoded strip frames to websocket clients.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*websocket.Conn]bool
	frameID   uint64
	startTime time.Time
	count     int
	driver    string
}

func NewHub(count int, driver string) *Hub {
	return &Hub{
		clients:   map[*websocket.Conn]bool{},
		startTime: time.Now(),
		count:     count,
		driver:    driver,
	}
}

type pixel struct {
	CurrentRed   uint8  `json:"cr"`
	CurrentGreen uint8  `json:"cg"`
	CurrentBlue  uint8  `json:"cb"`
	Red          uint16 `json:"r"`
	Green        uint16 `json:"g"`
	Blue         uint16 `json:"b"`
}

type frame struct {
	T       int64   `json:"t"`
	FrameID uint64  `json:"frame_id"`
	Pixels  []pixel `json:"pixels"`
}

func (h *Hub) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	resp := map[string]any{
		"frame_id": h.frameID,
		"uptime_s": time.Since(h.startTime).Seconds(),
		"count":    h.count,
		"driver":   h.driver,
		"clients":  len(h.clients),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// SetDriver names the output reported by /health.
func (h *Hub) SetDriver(driver string) {
	h.mu.Lock()
	h.driver = driver
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends one frame to every client.
func (h *Hub) Broadcast(pixels []model.Pixel) {
	f := frame{T: time.Now().UnixNano(), Pixels: make([]pixel, len(pixels))}
	for i, p := range pixels {
		f.Pixels[i] = pixel(p)
	}

	h.mu.Lock()
	h.frameID++
	f.FrameID = h.frameID
	h.mu.Unlock()

	b, err := json.Marshal(f)
	if err != nil {
		log.Debug().Err(err).Msg("encode frame")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write frame")
		}
	}
}
