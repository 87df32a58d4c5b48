// Package adapters holds storage implementations that need no external
// service.
package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wicaksana/gema/domain/entities"
	"github.com/wicaksana/gema/domain/repositories"
)

var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrInvalidCredentials = errors.New("invalid device credentials")
)

// MemoryDeviceRepository is an in-memory provisioning store, used when no
// MongoDB URI is configured.
type MemoryDeviceRepository struct {
	mu      sync.RWMutex
	devices map[string]*entities.Device
	serials map[string]*entities.Device
}

func NewMemoryDeviceRepository() *MemoryDeviceRepository {
	return &MemoryDeviceRepository{
		devices: make(map[string]*entities.Device),
		serials: make(map[string]*entities.Device),
	}
}

var _ repositories.DeviceRepository = (*MemoryDeviceRepository)(nil)

// Seed registers a device with fixed credentials, for local development.
func (m *MemoryDeviceRepository) Seed(serialNumber, secret, model string) {
	m.Create(context.Background(), &entities.Device{
		SerialNumber: serialNumber,
		SecretKey:    secret,
		Model:        model,
	})
}

func (m *MemoryDeviceRepository) Create(ctx context.Context, device *entities.Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.serials[device.SerialNumber]; exists {
		return errors.New("device already exists")
	}
	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	stored := *device
	m.devices[stored.ID] = &stored
	m.serials[stored.SerialNumber] = &stored
	return nil
}

func (m *MemoryDeviceRepository) GetByID(ctx context.Context, id string) (*entities.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.devices[id]
	if !exists {
		return nil, ErrDeviceNotFound
	}
	copied := *device
	return &copied, nil
}

func (m *MemoryDeviceRepository) GetBySerialNumber(ctx context.Context, serialNumber string) (*entities.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.serials[serialNumber]
	if !exists {
		return nil, ErrDeviceNotFound
	}
	copied := *device
	return &copied, nil
}

func (m *MemoryDeviceRepository) ValidateDevice(ctx context.Context, serialNumber, secret string) (*entities.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.serials[serialNumber]
	if !exists {
		return nil, ErrDeviceNotFound
	}
	if device.SecretKey != secret {
		return nil, ErrInvalidCredentials
	}
	copied := *device
	return &copied, nil
}
