package adapters

import (
	"context"
	"errors"
	"testing"

	"github.com/wicaksana/gema/domain/entities"
)

func TestMemoryDeviceLifecycle(t *testing.T) {
	repo := NewMemoryDeviceRepository()
	ctx := context.Background()

	device := &entities.Device{SerialNumber: "GEMA001", SecretKey: "secret123", Model: "doll-v1"}
	if err := repo.Create(ctx, device); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if device.ID == "" {
		t.Fatal("Create did not assign an id")
	}

	got, err := repo.GetByID(ctx, device.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.SerialNumber != "GEMA001" {
		t.Errorf("SerialNumber = %q", got.SerialNumber)
	}

	if _, err := repo.GetBySerialNumber(ctx, "GEMA001"); err != nil {
		t.Errorf("GetBySerialNumber: %v", err)
	}

	if err := repo.Create(ctx, &entities.Device{SerialNumber: "GEMA001", SecretKey: "x", Model: "doll-v1"}); err == nil {
		t.Error("expected duplicate serial to be rejected")
	}
}

func TestMemoryDeviceValidate(t *testing.T) {
	repo := NewMemoryDeviceRepository()
	repo.Seed("GEMA001", "secret123", "doll-v1")
	ctx := context.Background()

	if _, err := repo.ValidateDevice(ctx, "GEMA001", "secret123"); err != nil {
		t.Errorf("ValidateDevice: %v", err)
	}
	if _, err := repo.ValidateDevice(ctx, "GEMA001", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := repo.ValidateDevice(ctx, "NOPE", "secret123"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("err = %v, want ErrDeviceNotFound", err)
	}
}
