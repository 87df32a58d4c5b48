package api

import "time"

// DeviceAuthRequest carries provisioning credentials for token issuance.
type DeviceAuthRequest struct {
	SerialNumber string `json:"serial_number" validate:"required"`
	SecretKey    string `json:"secret_key" validate:"required"`
}

// DeviceAuthResponse returns the bearer token the device presents at the
// WebSocket endpoint.
type DeviceAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	DeviceID  string    `json:"device_id"`
}

// SpeakRequest asks a connected device to speak a message.
type SpeakRequest struct {
	Message string `json:"message" validate:"required"`
}

// ErrorResponse is the JSON error shape for every REST endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
