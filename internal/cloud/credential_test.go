package cloud

import (
	"testing"
	"time"

	"codeberg.org/mutker/envirod/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConnectionString = "HostName=hub.example.net;DeviceId=enviro-01;SharedAccessKey=c2VjcmV0LWtleS1mb3ItdGVzdHM="

func TestParseConnectionString(t *testing.T) {
	cred, err := ParseConnectionString(testConnectionString)
	require.NoError(t, err)

	assert.Equal(t, "hub.example.net", cred.HostName)
	assert.Equal(t, "enviro-01", cred.DeviceID)
	assert.Equal(t, []byte("secret-key-for-tests"), cred.key)
	assert.Equal(t, "wss://hub.example.net/devices/enviro-01/ws", cred.WebsocketURL())
}

func TestParseConnectionStringInvalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"missing device", "HostName=hub.example.net;SharedAccessKey=c2VjcmV0"},
		{"missing key", "HostName=hub.example.net;DeviceId=enviro-01"},
		{"malformed segment", "HostName=hub.example.net;DeviceId;SharedAccessKey=c2VjcmV0"},
		{"bad base64", "HostName=hub.example.net;DeviceId=enviro-01;SharedAccessKey=%%%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConnectionString(tt.in)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, ErrInvalidCredential))
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cred, err := ParseConnectionString(testConnectionString)
	require.NoError(t, err)

	token, err := cred.Token("dtmi:test;1", time.Hour, time.Now())
	require.NoError(t, err)

	claims, err := cred.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "enviro-01", claims.Subject)
	assert.Equal(t, "dtmi:test;1", claims.ModelID)

	other, err := ParseConnectionString("HostName=hub.example.net;DeviceId=enviro-01;SharedAccessKey=b3RoZXI=")
	require.NoError(t, err)
	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	cred, err := ParseConnectionString(testConnectionString)
	require.NoError(t, err)

	token, err := cred.Token("", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = cred.VerifyToken(token)
	assert.Error(t, err)
}
