package license

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	CommandCheckout  = "checkout"
	CommandCheckin   = "checkin"
	CommandHeartbeat = "heartbeat"
	CommandQuery     = "query"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

const (
	CodeBadRequest        = "bad_request"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodePermissionDenied  = "permission_denied"
	CodeCapacityExhausted = "capacity_exhausted"
	CodeTransient         = "transient"
)

// DefaultMaxMessageBytes bounds a single framed message.
const DefaultMaxMessageBytes = 64 * 1024

type Request struct {
	Command    string `json:"command"`
	SoftwareID string `json:"software_id,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

type Response struct {
	Status    string `json:"status"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Expiry    string `json:"expiry,omitempty"`

	SoftwareName      string `json:"software_name,omitempty"`
	Version           string `json:"version,omitempty"`
	TotalLicenses     int    `json:"total_licenses,omitempty"`
	ActiveSessions    int    `json:"active_sessions,omitempty"`
	AvailableLicenses int    `json:"available_licenses,omitempty"`
}

var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// ReadMessage reads one newline-delimited JSON message, accumulating until
// the delimiter arrives, and unmarshals it into v.
func ReadMessage(r *bufio.Reader, maxBytes int, v interface{}) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}

	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > maxBytes {
			return ErrMessageTooLarge
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(buf) > 0 {
			// Peer closed after writing an unterminated message; take
			// what arrived.
			break
		}
		return err
	}

	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}
	return nil
}

// WriteMessage frames v as one newline-terminated JSON message.
func WriteMessage(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func errorResponse(code string, message string) Response {
	return Response{
		Status:  StatusError,
		Code:    code,
		Message: message,
	}
}
