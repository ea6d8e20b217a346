package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeCommand parses one protocol line (newline already stripped) into a
// Command. On failure it returns a ready-to-send error Response instead: the
// caller writes it back without consulting the dispatcher.
//
// Decode failures still try to recover the caller's id from the payload so
// the error can be correlated; when nothing is recoverable the response uses
// FallbackID.
func DecodeCommand(line []byte) (*Command, *Response) {
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		// The payload may be malformed JSON overall but still contain a
		// usable id field (e.g. trailing garbage after a valid prefix).
		id := recoverID(line)
		return nil, ErrorResponse(id, ErrMalformedPayload, fmt.Sprintf("invalid JSON frame: %v", err))
	}

	if cmd.ID == "" {
		return nil, ErrorResponse(FallbackID, ErrMissingID, "request frame missing id")
	}
	if cmd.Action == "" {
		return nil, ErrorResponse(cmd.ID, ErrMissingField, "request frame missing action")
	}
	if !IsValidAction(cmd.Action) {
		return nil, ErrorResponse(cmd.ID, ErrUnknownAction,
			fmt.Sprintf("unknown action %q, valid actions: %v", cmd.Action, ValidActions))
	}

	return &cmd, nil
}

// recoverID makes a best-effort attempt to pull an id out of a frame that
// failed full decoding. A lenient scan over a truncated or garbage-suffixed
// frame is enough; anything else falls back to the sentinel.
func recoverID(line []byte) string {
	dec := json.NewDecoder(bytes.NewReader(line))
	var partial struct {
		ID string `json:"id"`
	}
	if err := dec.Decode(&partial); err == nil && partial.ID != "" {
		return partial.ID
	}
	return FallbackID
}

// EncodeResponse serializes a response as exactly one newline-terminated
// frame. JSON string escaping guarantees payload values can never introduce
// an embedded raw newline, which the framing depends on.
func EncodeResponse(resp *Response) ([]byte, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response %s: %w", resp.ID, err)
	}
	return append(raw, '\n'), nil
}

// EncodeCommand serializes a request as one newline-terminated frame.
// Used by the client transport.
func EncodeCommand(cmd *Command) ([]byte, error) {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command %s: %w", cmd.ID, err)
	}
	return append(raw, '\n'), nil
}

// DecodeResponse parses one response line. Used by the client transport.
func DecodeResponse(line []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("invalid response frame: %w", err)
	}
	return &resp, nil
}
