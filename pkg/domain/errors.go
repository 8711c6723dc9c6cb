package domain

import (
	"errors"
	"fmt"
)

// ErrDeviceUnavailable is returned when the camera cannot be acquired (permission denied, no device, OS failure).
var ErrDeviceUnavailable = errors.New("camera device unavailable")

// ErrInsufficientImages is returned when a strip is requested before the session captured every frame.
var ErrInsufficientImages = errors.New("insufficient images")

// ErrRenderFailure is returned when a still cannot be produced from the frame source.
var ErrRenderFailure = errors.New("render failure")

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// DeviceCategory classifies why a camera could not be acquired.
type DeviceCategory string

const (
	DevicePermissionDenied DeviceCategory = "permission_denied"
	DeviceNotFound         DeviceCategory = "not_found"
	DeviceBusy             DeviceCategory = "busy"
	DeviceOSFailure        DeviceCategory = "os_failure"
)

// DeviceError describes a failed camera acquisition.
// It matches ErrDeviceUnavailable with errors.Is.
type DeviceError struct {
	Category DeviceCategory
	Message  string
	Err      error
}

// NewDeviceError builds a DeviceError wrapping an optional cause.
func NewDeviceError(category DeviceCategory, message string, cause error) *DeviceError {
	return &DeviceError{Category: category, Message: message, Err: cause}
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceUnavailable
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// UserMessage returns the text shown to the user when the camera cannot be used.
func (e *DeviceError) UserMessage() string {
	switch e.Category {
	case DevicePermissionDenied:
		return "Camera access was denied. Allow camera access and start again."
	case DeviceNotFound:
		return "No camera was found. Connect a camera and start again."
	case DeviceBusy:
		return "The camera is in use by another session."
	default:
		return "Unable to access the camera."
	}
}
