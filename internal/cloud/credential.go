package cloud

import (
	"encoding/base64"
	"strings"
	"time"

	"codeberg.org/mutker/envirod/internal/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Credential is a parsed device connection string of the form
// HostName=<host>;DeviceId=<id>;SharedAccessKey=<base64 key>.
type Credential struct {
	HostName string
	DeviceID string
	key      []byte
}

// DeviceClaims are carried by the token presented when dialing.
type DeviceClaims struct {
	ModelID string `json:"model_id,omitempty"`
	jwt.RegisteredClaims
}

// ParseConnectionString validates and parses a device connection string.
func ParseConnectionString(s string) (*Credential, error) {
	errFactory := errors.New()

	fields := map[string]string{}
	for _, part := range strings.Split(strings.TrimSpace(s), ";") {
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, errFactory.WithData(ErrInvalidCredential, "malformed segment")
		}
		fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	for _, k := range []string{"HostName", "DeviceId", "SharedAccessKey"} {
		if fields[k] == "" {
			return nil, errFactory.WithData(ErrInvalidCredential, "missing "+k)
		}
	}

	key, err := base64.StdEncoding.DecodeString(fields["SharedAccessKey"])
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidCredential, err)
	}

	return &Credential{
		HostName: fields["HostName"],
		DeviceID: fields["DeviceId"],
		key:      key,
	}, nil
}

// Token signs a short-lived HS256 token with the shared access key.
func (c *Credential) Token(modelID string, ttl time.Duration, now time.Time) (string, error) {
	claims := DeviceClaims{
		ModelID: modelID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.DeviceID,
			Subject:   c.DeviceID,
			Audience:  jwt.ClaimStrings{c.HostName},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", errors.New().Wrap(ErrTokenSign, err)
	}

	return signed, nil
}

// VerifyToken parses a token signed with the same shared key. The cloud side
// uses it; the agent uses it in tests.
func (c *Credential) VerifyToken(tokenString string) (*DeviceClaims, error) {
	claims := &DeviceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New().WithData(ErrInvalidCredential, token.Header["alg"])
		}
		return c.key, nil
	}, jwt.WithAudience(c.HostName))
	if err != nil {
		return nil, errors.New().Wrap(ErrInvalidCredential, err)
	}

	if !token.Valid {
		return nil, errors.New().WithMessage(ErrInvalidCredential, "invalid token")
	}

	return claims, nil
}

// WebsocketURL returns the default device endpoint for this credential.
func (c *Credential) WebsocketURL() string {
	return "wss://" + c.HostName + "/devices/" + c.DeviceID + "/ws"
}
