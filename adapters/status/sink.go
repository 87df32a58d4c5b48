// Package status implements connectivity sinks notified on every session
// state transition.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wicaksana/gema/domain/entities"
	"github.com/wicaksana/gema/domain/repositories"
)

// ZapSink logs transitions; the default sink when no webhook is configured.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Publish(deviceID string, state entities.SessionState) {
	s.logger.Info("Device state changed",
		zap.String("deviceID", deviceID),
		zap.String("state", string(state)))
}

// WebhookSink POSTs transitions to an external URL so the controlling
// platform can mirror connectivity. Deliveries run in their own goroutine;
// a slow endpoint never back-pressures a session.
type WebhookSink struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewWebhookSink(url string, logger *zap.Logger) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

type statusPayload struct {
	DeviceID  string `json:"device_id"`
	State     string `json:"state"`
	Timestamp int64  `json:"timestamp"`
}

func (s *WebhookSink) Publish(deviceID string, state entities.SessionState) {
	go s.deliver(statusPayload{
		DeviceID:  deviceID,
		State:     string(state),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *WebhookSink) deliver(payload statusPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to encode status payload", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("Failed to build status request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("Status webhook delivery failed",
			zap.String("deviceID", payload.DeviceID),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Warn("Status webhook rejected delivery",
			zap.String("deviceID", payload.DeviceID),
			zap.Int("status", resp.StatusCode))
	}
}

// MultiSink fans one transition out to several sinks.
type MultiSink []repositories.ConnectivitySink

func (m MultiSink) Publish(deviceID string, state entities.SessionState) {
	for _, sink := range m {
		sink.Publish(deviceID, state)
	}
}
