// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/head_tracker/internal/calibration"
	"github.com/relabs-tech/head_tracker/internal/orientation"
	"github.com/relabs-tech/head_tracker/internal/osc"
)

const (
	writeWait   = 2 * time.Second
	clientQueue = 16
)

// WSMessage is a control action sent by the viewer.
type WSMessage struct {
	Action   string        `json:"action"` // reset, calibrate_start, calibrate_finish, set_osc, get_osc
	Settings *osc.Settings `json:"settings,omitempty"`
}

// WSResponse is everything the server pushes to viewers.
type WSResponse struct {
	Type         string            `json:"type"` // pose, status, settings, ack, error
	Pose         *orientation.Pose `json:"pose,omitempty"`
	Connected    bool              `json:"connected"`
	PatternValid bool              `json:"pattern_valid"`
	Mirror       bool              `json:"mirror"`
	Settings     *osc.Settings     `json:"settings,omitempty"`
	Action       string            `json:"action,omitempty"`
	Message      string            `json:"message,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan WSResponse
}

// Viewer serves the browser head view, its gesture controls and a small
// JSON API.
type Viewer struct {
	pipeline   *Pipeline
	calibrator *calibration.Calibrator
	sender     *osc.Sender
	staticDir  string
	mirror     bool
	logger     *zap.SugaredLogger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewViewer creates a viewer. Register it with pipeline.AddSink to stream
// poses.
func NewViewer(p *Pipeline, cal *calibration.Calibrator, snd *osc.Sender, staticDir string, mirror bool, logger *zap.SugaredLogger) *Viewer {
	return &Viewer{
		pipeline:   p,
		calibrator: cal,
		sender:     snd,
		staticDir:  staticDir,
		mirror:     mirror,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, any origin
			},
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Handler returns the HTTP routes.
func (v *Viewer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", v.handleWS)

	// JSON API endpoint: latest pose
	mux.HandleFunc("/api/orientation", func(w http.ResponseWriter, r *http.Request) {
		pose, ok := v.pipeline.Latest()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		v.writeJSON(w, pose)
	})
	mux.HandleFunc("/api/calibration", func(w http.ResponseWriter, r *http.Request) {
		v.writeJSON(w, v.calibrator.Record())
	})
	mux.HandleFunc("/api/osc", func(w http.ResponseWriter, r *http.Request) {
		v.writeJSON(w, struct {
			osc.Settings
			Valid bool `json:"valid"`
		}{v.sender.Settings(), v.sender.Valid()})
	})

	// Static files as the root
	if v.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(v.staticDir)))
	}
	return mux
}

func (v *Viewer) writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		v.logger.Debugw("json encode error", "error", err)
	}
}

// PublishPose pushes a pose to every viewer.
func (v *Viewer) PublishPose(pose orientation.Pose) {
	st := v.pipeline.Status()
	v.broadcast(WSResponse{
		Type:         "pose",
		Pose:         &pose,
		Connected:    st.Connected,
		PatternValid: st.PatternValid,
		Mirror:       v.mirror,
	})
}

// PublishStatus pushes a status change to every viewer.
func (v *Viewer) PublishStatus(st Status) {
	v.broadcast(v.statusResponse(st))
}

func (v *Viewer) statusResponse(st Status) WSResponse {
	return WSResponse{
		Type:         "status",
		Connected:    st.Connected,
		PatternValid: st.PatternValid,
		Mirror:       v.mirror,
	}
}

// broadcast never blocks: a viewer that cannot keep up misses frames.
func (v *Viewer) broadcast(msg WSResponse) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for c := range v.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Close disconnects all viewers.
func (v *Viewer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for c := range v.clients {
		close(c.send)
		delete(v.clients, c)
	}
	return nil
}

func (v *Viewer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := v.upgrader.Upgrade(w, r, nil)
	if err != nil {
		v.logger.Debugw("websocket upgrade error", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan WSResponse, clientQueue)}
	settings := v.sender.Settings()
	c.send <- v.statusResponse(v.pipeline.Status())
	c.send <- WSResponse{Type: "settings", Settings: &settings, PatternValid: v.sender.Valid()}

	v.mu.Lock()
	v.clients[c] = struct{}{}
	v.mu.Unlock()
	v.logger.Debugw("viewer connected", "remote", r.RemoteAddr)

	go v.writeLoop(c)
	v.readLoop(c)
}

func (v *Viewer) writeLoop(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			v.logger.Debugw("websocket write error", "error", err)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
}

// readLoop handles control actions until the viewer goes away.
func (v *Viewer) readLoop(c *wsClient) {
	defer v.remove(c)
	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				v.logger.Debugw("websocket read error", "error", err)
			}
			return
		}
		v.reply(c, v.handleAction(msg))
	}
}

func (v *Viewer) remove(c *wsClient) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.clients[c]; ok {
		close(c.send)
		delete(v.clients, c)
	}
}

func (v *Viewer) reply(c *wsClient, msg WSResponse) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (v *Viewer) handleAction(msg WSMessage) WSResponse {
	ack := WSResponse{Type: "ack", Action: msg.Action, Mirror: v.mirror}
	switch msg.Action {
	case "reset":
		v.calibrator.ResetOrientation()

	case "calibrate_start":
		v.calibrator.StartCalibration()

	case "calibrate_finish":
		if err := v.calibrator.FinishCalibration(); err != nil {
			v.logger.Infow("calibration rejected", "error", err)
			return errorResponse(msg.Action, err)
		}

	case "set_osc":
		if msg.Settings == nil {
			return errorResponse(msg.Action, errors.New("missing settings"))
		}
		err := v.sender.SetSettings(*msg.Settings)
		// validity may have flipped even when err != nil
		v.pipeline.PublishStatus()
		if err != nil {
			return errorResponse(msg.Action, err)
		}
		settings := v.sender.Settings()
		ack.Settings = &settings

	case "get_osc":
		settings := v.sender.Settings()
		ack.Settings = &settings

	default:
		return errorResponse(msg.Action, errors.New("unknown action"))
	}
	ack.PatternValid = v.sender.Valid()
	return ack
}

func errorResponse(action string, err error) WSResponse {
	return WSResponse{Type: "error", Action: action, Message: err.Error()}
}
