package repositories

import (
	"context"

	"github.com/wicaksana/gema/domain/entities"
)

// DeviceRepository is the provisioning store consulted during token
// issuance. Credentials are opaque to the session layer.
type DeviceRepository interface {
	Create(ctx context.Context, device *entities.Device) error
	GetByID(ctx context.Context, id string) (*entities.Device, error)
	GetBySerialNumber(ctx context.Context, serialNumber string) (*entities.Device, error)
	// ValidateDevice checks serial/secret credentials and returns the device.
	ValidateDevice(ctx context.Context, serialNumber, secret string) (*entities.Device, error)
}
