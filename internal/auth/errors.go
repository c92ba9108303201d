package auth

import "errors"

var (
	// ErrInvalidToken indicates the token failed signature or claim validation.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrWrongTokenType is returned when a refresh token is presented as an access token or vice versa.
	ErrWrongTokenType = errors.New("auth: wrong token type")
	ErrInvalidInput   = errors.New("auth: invalid input")
	ErrMissingSecret  = errors.New("auth: signing secret is not configured")
)
