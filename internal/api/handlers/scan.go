package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/scanengine/internal/engine"
	"github.com/wonny/scanengine/internal/scheduler"
	"github.com/wonny/scanengine/pkg/logger"
)

// ScanService is the part of the pipeline the API exposes
type ScanService interface {
	Status() engine.Status
	Latest() *engine.ScanResult
	RequestCancel() error
	Subscribe() (<-chan *engine.ScanResult, func())
}

// JobStats reports scheduler job statistics
type JobStats interface {
	GetJobStats() map[string]scheduler.JobStats
}

// ScanHandler handles scan status, cancellation and the monitor stream
// ⭐ SSOT: 스캔 API 핸들러는 여기서만
type ScanHandler struct {
	scans    ScanService
	jobs     JobStats
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewScanHandler creates a new scan handler; jobs may be nil
func NewScanHandler(scans ScanService, jobs JobStats, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		scans:  scans,
		jobs:   jobs,
		logger: log.WithField("module", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// GetStatus returns the pipeline status
// GET /api/scans/status
func (h *ScanHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scans.Status())
}

// GetLatest returns the most recent scan result
// GET /api/scans/latest?full=true
func (h *ScanHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	res := h.scans.Latest()
	if res == nil {
		respondError(w, http.StatusNotFound, "No scan has finished yet")
		return
	}

	if r.URL.Query().Get("full") == "true" {
		respondJSON(w, http.StatusOK, res)
		return
	}
	respondJSON(w, http.StatusOK, res.Summarize())
}

// Cancel requests cancellation of the running pipeline
// POST /api/scans/cancel
func (h *ScanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.scans.RequestCancel(); err != nil {
		h.logger.WithError(err).Warn("Cancel finished with forced pool termination")
	}
	respondJSON(w, http.StatusAccepted, h.scans.Status())
}

// GetJobs returns scheduler job statistics
// GET /api/jobs
func (h *ScanHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondJSON(w, http.StatusOK, map[string]scheduler.JobStats{})
		return
	}
	respondJSON(w, http.StatusOK, h.jobs.GetJobStats())
}

// StreamMessage is one frame on the monitor stream
type StreamMessage struct {
	Type string      `json:"type"` // status, scan
	Data interface{} `json:"data"`
	Time int64       `json:"time"`
}

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// Stream pushes a status frame on connect and a summary frame per finished scan
// GET /api/monitor/stream (websocket)
func (h *ScanHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	results, unsubscribe := h.scans.Subscribe()
	defer unsubscribe()

	// Reader: detect client close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, "status", h.scans.Status()); err != nil {
		return
	}

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case res, ok := <-results:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "pipeline closed"),
					time.Now().Add(streamWriteWait))
				return
			}
			if err := h.write(conn, "scan", res.Summarize()); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *ScanHandler) write(conn *websocket.Conn, kind string, data interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	err := conn.WriteJSON(StreamMessage{Type: kind, Data: data, Time: time.Now().Unix()})
	if err != nil {
		h.logger.WithError(err).Debug("Monitor stream write failed")
	}
	return err
}
