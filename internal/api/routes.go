// Package api wires the HTTP surface: device token issuance, the WebSocket
// endpoint, the device registry listing, push speak and metrics.
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wicaksana/gema/domain/repositories"
	"github.com/wicaksana/gema/internal/auth"
	"github.com/wicaksana/gema/internal/observability"
	"github.com/wicaksana/gema/internal/websocket"
)

// Server holds the handler dependencies.
type Server struct {
	hub           *websocket.Hub
	devices       repositories.DeviceRepository
	authenticator *auth.Authenticator
	wsDeps        websocket.Deps
	wsPath        string
	logger        *zap.Logger
}

func NewServer(
	hub *websocket.Hub,
	devices repositories.DeviceRepository,
	authenticator *auth.Authenticator,
	wsDeps websocket.Deps,
	wsPath string,
	logger *zap.Logger,
) *Server {
	return &Server{
		hub:           hub,
		devices:       devices,
		authenticator: authenticator,
		wsDeps:        wsDeps,
		wsPath:        wsPath,
		logger:        logger,
	}
}

// Register mounts all routes on the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(observability.Handler()))
	e.GET(s.wsPath, s.websocketWithAuth)

	v1 := e.Group("/api/v1")
	v1.POST("/device/auth", s.deviceAuth)
	v1.GET("/devices", s.listDevices)
	v1.POST("/devices/:device_id/speak", s.pushSpeak)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "gema",
	})
}

func (s *Server) deviceAuth(c echo.Context) error {
	var req DeviceAuthRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.SerialNumber == "" || req.SecretKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Serial number and secret key are required",
		})
	}

	device, err := s.devices.ValidateDevice(c.Request().Context(), req.SerialNumber, req.SecretKey)
	if err != nil {
		s.logger.Warn("Device authentication failed",
			zap.String("serialNumber", req.SerialNumber),
			zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid device credentials",
		})
	}

	token, expiresAt, err := s.authenticator.GenerateDeviceToken(device.ID)
	if err != nil {
		s.logger.Error("Failed to generate device token",
			zap.String("deviceID", device.ID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	s.logger.Info("Device authenticated",
		zap.String("deviceID", device.ID),
		zap.String("serialNumber", device.SerialNumber))

	return c.JSON(http.StatusOK, DeviceAuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		DeviceID:  device.ID,
	})
}

func (s *Server) listDevices(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"devices": s.hub.Devices(),
	})
}

func (s *Server) pushSpeak(c echo.Context) error {
	deviceID := c.Param("device_id")

	var req SpeakRequest
	if err := c.Bind(&req); err != nil || req.Message == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "A non-empty message is required",
		})
	}

	err := s.hub.PushSpeak(c.Request().Context(), deviceID, req.Message)
	switch {
	case errors.Is(err, websocket.ErrDeviceNotConnected):
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "device_not_connected",
			Message: "Device has no live session",
		})
	case errors.Is(err, websocket.ErrSessionBusy):
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "session_busy",
			Message: "Device session is not idle",
		})
	case err != nil:
		s.logger.Error("Push speak failed",
			zap.String("deviceID", deviceID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "speak_failed",
			Message: "Failed to start speaking",
		})
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"status": "speaking",
	})
}

// websocketWithAuth validates the bearer token and hands the connection to
// the session layer with the proven device identity.
func (s *Server) websocketWithAuth(c echo.Context) error {
	var token string
	header := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		})
	}

	claims, err := s.authenticator.ValidateDeviceToken(token)
	if err != nil {
		s.logger.Warn("WebSocket connection rejected", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	s.logger.Info("WebSocket connection authenticated",
		zap.String("deviceID", claims.DeviceID))

	return websocket.HandleWebSocket(c.Response(), c.Request(), s.hub, claims.DeviceID, s.wsDeps)
}
