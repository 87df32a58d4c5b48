package entities

import "errors"

// DeviceIdentity is the immutable pair a terminal presents at handshake time.
// DeviceID is the registry key; ClientID distinguishes firmware installs that
// share a device.
type DeviceIdentity struct {
	DeviceID string `json:"device_id"`
	ClientID string `json:"client_id"`
}

func (i DeviceIdentity) Validate() error {
	if i.DeviceID == "" {
		return errors.New("device_id is required")
	}
	if i.ClientID == "" {
		return errors.New("client_id is required")
	}
	return nil
}
