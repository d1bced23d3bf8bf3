// Package testutil provides shared test fixtures for tokengov packages.
//
// It should only be imported by test files (*_test.go).
package testutil

import "errors"

// Mock errors used by hand-written fakes to simulate collaborator failures.
var (
	// ErrMockStoreUnavailable simulates a persistence backend that is down.
	ErrMockStoreUnavailable = errors.New("store unavailable")

	// ErrMockNotFound simulates a lookup miss in a fake.
	ErrMockNotFound = errors.New("not found")

	// ErrMockNetwork simulates a transport failure.
	ErrMockNetwork = errors.New("network error")

	// ErrMockTimeout simulates a collaborator that never answered.
	ErrMockTimeout = errors.New("operation timed out")
)
