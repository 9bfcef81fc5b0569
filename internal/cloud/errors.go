package cloud

import "codeberg.org/mutker/envirod/internal/errors"

const (
	ErrInvalidCredential = errors.ErrInvalidCredential
	ErrConnect           = errors.ErrConnect
	ErrNotConnected      = errors.ErrNotConnected
	ErrSend              = errors.ErrorCode("cloud_send_failed")
	ErrTokenSign         = errors.ErrorCode("cloud_token_sign_failed")
	ErrTwinRequest       = errors.ErrorCode("cloud_twin_request_failed")
	ErrClosed            = errors.ErrorCode("cloud_client_closed")
)
