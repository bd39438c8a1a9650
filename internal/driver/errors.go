package driver

import "errors"

// Sentinel errors the worker's failure taxonomy (spec.md §4.6, §7)
// switches on. Wrap with fmt.Errorf("...: %w", ErrX) from ConnectHandler
// and the Client methods so callers can errors.Is against them.
var (
	// ErrAuthentication marks a driver-reported AuthenticationException:
	// feeds C3's user axis only, never the breaker.
	ErrAuthentication = errors.New("driver: authentication failed")

	// ErrTimeout marks a connect or command timeout: feeds C3's device
	// axis and advances the breaker.
	ErrTimeout = errors.New("driver: connection timed out")

	// ErrConnection marks a TCP/SSH-protocol level failure distinct from a
	// timeout: feeds C3's device axis and advances the breaker.
	ErrConnection = errors.New("driver: TCP connection failed")

	// ErrUnsupported marks a save/commit call the platform doesn't
	// implement; spec.md §4.6 step 3 says the worker must swallow this.
	ErrUnsupported = errors.New("driver: operation unsupported on this platform")
)

// IsAuthFailure reports whether err (or anything it wraps) is an
// authentication failure.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsTimeout reports whether err is a connect/command timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsConnectionError reports whether err is a non-timeout transport error.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsUnsupported reports whether err is an unsupported-operation error that
// callers performing save/commit must swallow rather than fail the job
// over.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}
