package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSelection is returned when fewer candidates exist than were requested.
var ErrSelection = errors.New("not enough candidates to sample")

// NetworkError reports an unreachable host or a non-success response.
type NetworkError struct {
	URL    string
	Status string
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %s", e.URL, e.Status)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ToolError reports a failed external tool invocation.
type ToolError struct {
	Tool   string
	Args   []string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
