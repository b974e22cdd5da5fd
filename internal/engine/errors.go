package engine

import "errors"

// ErrAutomationNotFound is returned when an invocation names an automation
// that does not exist. Nothing is written to the execution log in that case.
var ErrAutomationNotFound = errors.New("automation not found")
