package webdriver

import (
	"fmt"

	"github.com/perfgo/e2erun/driver"
)

// Error is a WebDriver error response.
type Error struct {
	StatusCode int
	// Code is the W3C error code, e.g. "no such element".
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("webdriver: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// Is reports element lookup failures as driver.ErrNoSuchElement.
func (e *Error) Is(target error) bool {
	return target == driver.ErrNoSuchElement && e.Code == "no such element"
}

// legacyCode maps a JSON wire protocol status to its W3C error code.
func legacyCode(status int) string {
	switch status {
	case 6:
		return "invalid session id"
	case 7:
		return "no such element"
	case 10:
		return "stale element reference"
	case 11:
		return "element not interactable"
	case 17:
		return "javascript error"
	case 21:
		return "timeout"
	case 28:
		return "script timeout"
	}
	return "unknown error"
}
