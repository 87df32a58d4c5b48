package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wicaksana/gema/domain/entities"
	"github.com/wicaksana/gema/domain/repositories"
)

const devicesCollection = "devices"

var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrInvalidCredentials = errors.New("invalid device credentials")
)

// DeviceRepository persists provisioned devices in the devices collection.
type DeviceRepository struct {
	collection *mongo.Collection
}

func NewDeviceRepository(client *Client) *DeviceRepository {
	return &DeviceRepository{
		collection: client.Database.Collection(devicesCollection),
	}
}

var _ repositories.DeviceRepository = (*DeviceRepository)(nil)

func (r *DeviceRepository) Create(ctx context.Context, device *entities.Device) error {
	if err := device.Validate(); err != nil {
		return err
	}
	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, device); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("device %s already exists", device.SerialNumber)
		}
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*entities.Device, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *DeviceRepository) GetBySerialNumber(ctx context.Context, serialNumber string) (*entities.Device, error) {
	return r.findOne(ctx, bson.M{"serial_number": serialNumber})
}

func (r *DeviceRepository) ValidateDevice(ctx context.Context, serialNumber, secret string) (*entities.Device, error) {
	device, err := r.GetBySerialNumber(ctx, serialNumber)
	if err != nil {
		return nil, err
	}
	if device.SecretKey != secret {
		return nil, ErrInvalidCredentials
	}
	return device, nil
}

func (r *DeviceRepository) findOne(ctx context.Context, filter bson.M) (*entities.Device, error) {
	var device entities.Device
	err := r.collection.FindOne(ctx, filter).Decode(&device)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find device: %w", err)
	}
	return &device, nil
}
