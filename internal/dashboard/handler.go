package dashboard

import (
	"encoding/json"
	"time"

	"github.com/venkatasai2714/aw-sync/internal/metrics"
	"github.com/venkatasai2714/aw-sync/internal/sync"
)

// PassStartedData announces the beginning of a sync pass.
type PassStartedData struct {
	DeviceID string `json:"device_id"`
}

// PassCompleteData summarizes a finished pass.
type PassCompleteData struct {
	PassID    string        `json:"pass_id"`
	DeviceID  string        `json:"device_id"`
	Remotes   int           `json:"remotes"`
	Buckets   int           `json:"buckets"`
	NewEvents int           `json:"new_events"`
	Duration  time.Duration `json:"duration"`
}

// ErrorData carries the error that aborted a pass.
type ErrorData struct {
	Error string `json:"error"`
}

// Handler bridges sync pass progress into dashboard broadcasts and
// Prometheus counters. It implements sync.Observer.
type Handler struct {
	server *Server
}

var _ sync.Observer = (*Handler)(nil)

// NewHandler creates a handler broadcasting through the given server.
func NewHandler(server *Server) *Handler {
	return &Handler{server: server}
}

// PassStarted implements sync.Observer.
func (h *Handler) PassStarted(deviceID string) {
	h.send(MessageTypePassStarted, PassStartedData{DeviceID: deviceID})
}

// BucketSynced implements sync.Observer.
func (h *Handler) BucketSynced(result sync.BucketResult) {
	direction := "pull"
	if result.Store == sync.StagingStore {
		direction = "push"
	}
	metrics.EventsSyncedTotal.WithLabelValues(direction).Add(float64(result.NewEvents))

	h.send(MessageTypeBucketSynced, result)
}

// PassCompleted implements sync.Observer.
func (h *Handler) PassCompleted(report *sync.PassReport) {
	metrics.PassesTotal.Inc()
	metrics.LastPassTimestamp.SetToCurrentTime()

	newEvents := 0
	for _, b := range report.Buckets {
		newEvents += b.NewEvents
	}

	h.send(MessageTypePassComplete, PassCompleteData{
		PassID:    report.PassID,
		DeviceID:  report.DeviceID,
		Remotes:   len(report.Remotes),
		Buckets:   len(report.Buckets),
		NewEvents: newEvents,
		Duration:  report.Duration,
	})
}

// PassFailed implements sync.Observer.
func (h *Handler) PassFailed(err error) {
	metrics.SyncErrorsTotal.Inc()
	h.send(MessageTypeError, ErrorData{Error: err.Error()})
}

func (h *Handler) send(typ MessageType, data any) {
	if h.server == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      payload,
	})
}
