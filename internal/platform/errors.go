package platform

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GraphError is a non-2xx response from the Graph API.
type GraphError struct {
	StatusCode int
	Code       int
	Type       string
	Message    string
}

func (e *GraphError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("graph api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("graph api: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

// Graph error codes that signal throttling or a temporary outage.
var transientCodes = map[int]bool{
	1:   true, // unknown error
	2:   true, // service temporarily unavailable
	4:   true, // application request limit reached
	17:  true, // user request limit reached
	32:  true, // page request limit reached
	341: true, // application limit reached
	613: true, // calls within one hour exceeded
}

// Transient reports whether retrying later may succeed.
func (e *GraphError) Transient() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return true
	}
	return transientCodes[e.Code]
}

type graphErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func parseGraphError(resp *http.Response) *GraphError {
	ge := &GraphError{StatusCode: resp.StatusCode}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return ge
	}
	var body graphErrorBody
	if json.Unmarshal(b, &body) == nil {
		ge.Code = body.Error.Code
		ge.Type = body.Error.Type
		ge.Message = body.Error.Message
	}
	return ge
}
