package services

import "errors"

// Error taxonomy shared by the processors. Handlers map these onto HTTP
// statuses: caller fault 4xx, store/provider fault 5xx.
var (
	ErrUserNotFound        = errors.New("user record not found")
	ErrCustomerNotFound    = errors.New("no user matches payment customer id")
	ErrInvalidSignature    = errors.New("webhook signature verification failed")
	ErrReceiptInvalid      = errors.New("receipt rejected by validation service")
	ErrStoreUnavailable    = errors.New("record store unavailable")
	ErrProviderUnavailable = errors.New("upstream provider unavailable")
)
