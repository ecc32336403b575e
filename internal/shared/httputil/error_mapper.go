package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HTTPErrorInfo contains the HTTP status code and message for an error.
type HTTPErrorInfo struct {
	Status  int
	Message string
}

// ErrorMapping represents a single error to HTTP status/message mapping.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string
}

// ErrorMapper maps domain errors to HTTP status codes and messages.
type ErrorMapper struct {
	mappings       []ErrorMapping
	defaultStatus  int
	defaultMessage string
}

// NewErrorMapper creates a new ErrorMapper with default settings.
func NewErrorMapper() *ErrorMapper {
	return &ErrorMapper{
		mappings:       make([]ErrorMapping, 0),
		defaultStatus:  http.StatusInternalServerError,
		defaultMessage: "internal server error",
	}
}

// WithMapping adds an error mapping to the mapper. Earlier mappings win.
func (m *ErrorMapper) WithMapping(err error, status int, message string) *ErrorMapper {
	m.mappings = append(m.mappings, ErrorMapping{
		Error:   err,
		Status:  status,
		Message: message,
	})
	return m
}

// WithDefault sets the default status and message for unmatched errors.
func (m *ErrorMapper) WithDefault(status int, message string) *ErrorMapper {
	m.defaultStatus = status
	m.defaultMessage = message
	return m
}

// Map converts an error to HTTP status and message.
func (m *ErrorMapper) Map(err error) HTTPErrorInfo {
	if info, ok := mapContextError(err); ok {
		return info
	}
	for _, mapping := range m.mappings {
		if errors.Is(err, mapping.Error) {
			return HTTPErrorInfo{Status: mapping.Status, Message: mapping.Message}
		}
	}
	return HTTPErrorInfo{Status: m.defaultStatus, Message: m.defaultMessage}
}

// HTTPError maps err and wraps the result as an echo error, keeping err as the internal cause
// so echo's logger still sees it.
func (m *ErrorMapper) HTTPError(err error) *echo.HTTPError {
	info := m.Map(err)
	return echo.NewHTTPError(info.Status, info.Message).SetInternal(err)
}

// QuickMap is a convenience function for quick error mapping without creating a mapper.
func QuickMap(err error, mappings ...ErrorMapping) HTTPErrorInfo {
	if info, ok := mapContextError(err); ok {
		return info
	}
	for _, mapping := range mappings {
		if errors.Is(err, mapping.Error) {
			return HTTPErrorInfo{Status: mapping.Status, Message: mapping.Message}
		}
	}
	return HTTPErrorInfo{Status: http.StatusInternalServerError, Message: "internal server error"}
}

func mapContextError(err error) (HTTPErrorInfo, bool) {
	switch {
	case err == nil:
		return HTTPErrorInfo{Status: http.StatusOK}, true
	case errors.Is(err, context.DeadlineExceeded):
		return HTTPErrorInfo{Status: http.StatusGatewayTimeout, Message: "request timeout"}, true
	case errors.Is(err, context.Canceled):
		return HTTPErrorInfo{Status: http.StatusServiceUnavailable, Message: "request cancelled"}, true
	}
	return HTTPErrorInfo{}, false
}
