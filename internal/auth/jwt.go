package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const deviceTokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid or expired token")

// DeviceClaims are the claims carried by a device token.
type DeviceClaims struct {
	DeviceID string `json:"device_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and validates device tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// GenerateDeviceToken issues a signed token for an authenticated device.
func (a *Authenticator) GenerateDeviceToken(deviceID string) (string, time.Time, error) {
	expiresAt := time.Now().Add(deviceTokenTTL)
	claims := &DeviceClaims{
		DeviceID: deviceID,
		Role:     "device",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateDeviceToken checks the signature and claims of a device token.
func (a *Authenticator) ValidateDeviceToken(tokenString string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != "device" || claims.DeviceID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
