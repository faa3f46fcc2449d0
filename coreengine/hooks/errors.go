package hooks

import "fmt"

// HookError is the common envelope for every error this package returns,
// mirroring commbus.CommBusError's Message+Cause+Unwrap shape.
type HookError struct {
	Message string
	Cause   error
}

func (e *HookError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *HookError) Unwrap() error {
	return e.Cause
}

// DuplicateRegistrationError is returned when a hook with the same name is
// registered twice at the same HookPoint.
type DuplicateRegistrationError struct {
	HookError
	Name  string
	Point HookPoint
}

func NewDuplicateRegistrationError(name string, point HookPoint) *DuplicateRegistrationError {
	return &DuplicateRegistrationError{
		HookError: HookError{Message: fmt.Sprintf("hook %q already registered at point %q", name, point)},
		Name:      name,
		Point:     point,
	}
}

// UnknownHookPointError is returned when a caller references a HookPoint
// outside the closed set in AllHookPoints.
type UnknownHookPointError struct {
	HookError
	Point HookPoint
}

func NewUnknownHookPointError(point HookPoint) *UnknownHookPointError {
	return &UnknownHookPointError{
		HookError: HookError{Message: fmt.Sprintf("unknown hook point %q", point)},
		Point:     point,
	}
}

// CircuitOpenError is returned by the executor when a hook's circuit breaker
// is open and the call is short-circuited rather than invoked.
type CircuitOpenError struct {
	HookError
	Name string
}

func NewCircuitOpenError(name string) *CircuitOpenError {
	return &CircuitOpenError{
		HookError: HookError{Message: fmt.Sprintf("circuit open for hook %q", name)},
		Name:      name,
	}
}

// CyclicDependencyError is returned when a hook dependency graph (used by the
// global registry, and by hook chains that declare Requires) contains a
// cycle and cannot be topologically sorted.
type CyclicDependencyError struct {
	HookError
	Cycle []string
}

func NewCyclicDependencyError(cycle []string) *CyclicDependencyError {
	return &CyclicDependencyError{
		HookError: HookError{Message: fmt.Sprintf("cyclic dependency detected: %v", cycle)},
		Cycle:     cycle,
	}
}

// RegistryClosedError is returned when Register is called after Close.
type RegistryClosedError struct {
	HookError
}

func NewRegistryClosedError() *RegistryClosedError {
	return &RegistryClosedError{HookError: HookError{Message: "hook registry is closed"}}
}
