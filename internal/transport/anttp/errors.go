package anttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// RemoteError is a failed response from the AntTP server.
type RemoteError struct {
	Method  string `json:"-"`
	Path    string `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
	Detail  string `json:"detail,omitempty"`
	Status  int    `json:"-"`
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return fmt.Sprintf("remote request failed (%s %s, status %d): %s", e.Method, e.Path, e.Status, msg)
}

// Temporary reports whether the server may succeed on a later attempt.
func (e *RemoteError) Temporary() bool {
	return isRetryableStatus(e.Status)
}

// remoteError builds a RemoteError from a non-success response, using the
// structured body when the server sent one.
func remoteError(method, path string, status int, body []byte) *RemoteError {
	re := RemoteError{Method: method, Path: path, Status: status}
	if err := json.Unmarshal(body, &re); err == nil && (re.Message != "" || re.Code != "") {
		return &re
	}
	re.Code, re.Detail = "", ""
	re.Message = strings.TrimSpace(string(body))
	if re.Message == "" {
		re.Message = http.StatusText(status)
	}
	return &re
}
