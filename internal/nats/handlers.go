package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stone-age-io/sysmetrics/internal/sampler"
	"go.uber.org/zap"
)

// Collector produces a live snapshot
type Collector interface {
	Collect(ctx context.Context) (sampler.Snapshot, error)
}

// CommandHandlers answers request/reply commands addressed to this host
type CommandHandlers struct {
	logger        *zap.Logger
	hostID        string
	subjectPrefix string
	collector     Collector
	version       string
	timeout       time.Duration
	started       time.Time
	connected     func() bool
}

// NewCommandHandlers creates a new command handler manager. timeout bounds
// a single snapshot collection
func NewCommandHandlers(logger *zap.Logger, subjectPrefix, hostID string, collector Collector, version string, timeout time.Duration) *CommandHandlers {
	return &CommandHandlers{
		logger:        logger,
		hostID:        hostID,
		subjectPrefix: subjectPrefix,
		collector:     collector,
		version:       version,
		timeout:       timeout,
		started:       time.Now(),
		connected:     func() bool { return false },
	}
}

// handleWithRecovery wraps a command handler with panic recovery so that one
// failing handler cannot take down the process
func (h *CommandHandlers) handleWithRecovery(name string, handler nats.MsgHandler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("Panic recovered in command handler",
					zap.String("handler", name),
					zap.String("subject", msg.Subject),
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())))
				h.respond(msg, errorReply(fmt.Sprintf("internal error: handler panicked: %v", r)))
			}
		}()
		handler(msg)
	}
}

// SubscribeAll subscribes to all command subjects for this host
func (h *CommandHandlers) SubscribeAll(client *Client) error {
	h.connected = client.IsConnected

	commands := []struct {
		name    string
		handler nats.MsgHandler
	}{
		{"ping", h.handlePing},
		{"snapshot", h.handleSnapshot},
		{"health", h.handleHealth},
	}
	for _, cmd := range commands {
		subject := CommandSubject(h.subjectPrefix, h.hostID, cmd.name)
		if _, err := client.Subscribe(subject, h.handleWithRecovery(cmd.name, cmd.handler)); err != nil {
			return err
		}
	}
	return nil
}

type pingResponse struct {
	Status    string `json:"status"`
	HostID    string `json:"host_id"`
	Timestamp string `json:"timestamp"`
}

type snapshotResponse struct {
	Status    string            `json:"status"`
	Snapshot  *sampler.Snapshot `json:"snapshot,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp string            `json:"timestamp"`
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	NATSConnected bool   `json:"nats_connected"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

type errorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func errorReply(message string) errorResponse {
	return errorResponse{Status: "error", Error: message, Timestamp: now()}
}

func (h *CommandHandlers) handlePing(msg *nats.Msg) {
	h.respond(msg, h.pingReply())
}

func (h *CommandHandlers) pingReply() pingResponse {
	return pingResponse{Status: "pong", HostID: h.hostID, Timestamp: now()}
}

func (h *CommandHandlers) handleSnapshot(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	h.respond(msg, h.snapshotReply(ctx))
}

// snapshotReply collects a live snapshot. Details of sampler failures stay in
// the log; callers only see a generic error
func (h *CommandHandlers) snapshotReply(ctx context.Context) snapshotResponse {
	snap, err := h.collector.Collect(ctx)
	if err != nil {
		message := "snapshot collection failed"
		if errors.Is(err, sampler.ErrNoData) {
			message = sampler.ErrNoData.Error()
		}
		h.logger.Warn("Snapshot command failed", zap.Error(err))
		return snapshotResponse{Status: "error", Error: message, Timestamp: now()}
	}
	return snapshotResponse{Status: "success", Snapshot: &snap, Timestamp: now()}
}

func (h *CommandHandlers) handleHealth(msg *nats.Msg) {
	h.respond(msg, h.healthReply())
}

func (h *CommandHandlers) healthReply() healthResponse {
	return healthResponse{
		Status:        "ok",
		Version:       h.version,
		NATSConnected: h.connected(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Timestamp:     now(),
	}
}

func (h *CommandHandlers) respond(msg *nats.Msg, reply any) {
	data, err := json.Marshal(reply)
	if err != nil {
		h.logger.Error("Failed to encode command response", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		h.logger.Debug("Failed to send command response",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}
