package relay_errors

import "errors"

// Common errors
var (
	ErrValidation         = errors.New("invalid traffic light color")
	ErrPublish            = errors.New("publish failed")
	ErrSubscribe          = errors.New("subscribe failed")
	ErrConnectionSend     = errors.New("connection send failed")
	ErrSerialization      = errors.New("event serialization failed")
	ErrBrokerClosed       = errors.New("broker closed")
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrUnknownDriver      = errors.New("unknown broker driver")
)
