// Package protocol defines the newline-delimited JSON IPC protocol spoken
// between the webpilot CLI and the daemon.
//
// Each frame is one JSON object on one line. Requests carry a caller-supplied
// correlation id and an action name; responses echo the id back with either a
// data payload or an error string, never both.
package protocol

import "encoding/json"

// FallbackID is used to correlate error responses for frames whose id could
// not be recovered.
const FallbackID = "unknown"

// Command represents a parsed request frame from the client.
type Command struct {
	ID     string `json:"id"`
	Action string `json:"action"`

	// Action-specific fields. All optional; which ones are meaningful
	// depends on Action.
	URL        string `json:"url,omitempty"`
	Selector   string `json:"selector,omitempty"`
	Text       string `json:"text,omitempty"`
	Key        string `json:"key,omitempty"`
	Value      string `json:"value,omitempty"`
	Expression string `json:"expression,omitempty"`
	Path       string `json:"path,omitempty"`
	Format     string `json:"format,omitempty"`
	TimeoutMS  int    `json:"timeout_ms,omitempty"`
	FullPage   bool   `json:"full_page,omitempty"`
	DeltaX     int    `json:"delta_x,omitempty"`
	DeltaY     int    `json:"delta_y,omitempty"`

	// Launch options.
	Engine   string `json:"engine,omitempty"`
	Headless *bool  `json:"headless,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// Response represents a response frame sent back to the client.
// Exactly one of Data/Error is populated.
type Response struct {
	ID      string         `json:"id"`
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Actions
const (
	ActionLaunch     = "launch"
	ActionNavigate   = "navigate"
	ActionClick      = "click"
	ActionType       = "type"
	ActionPress      = "press"
	ActionWait       = "wait"
	ActionScreenshot = "screenshot"
	ActionSnapshot   = "snapshot"
	ActionContent    = "content"
	ActionEvaluate   = "evaluate"
	ActionScroll     = "scroll"
	ActionHover      = "hover"
	ActionSelect     = "select"
	ActionClose      = "close"
)

// ValidActions lists every action the daemon accepts, in the order they are
// documented.
var ValidActions = []string{
	ActionLaunch, ActionNavigate, ActionClick, ActionType, ActionPress,
	ActionWait, ActionScreenshot, ActionSnapshot, ActionContent,
	ActionEvaluate, ActionScroll, ActionHover, ActionSelect, ActionClose,
}

// IsValidAction checks whether an action name is known.
func IsValidAction(action string) bool {
	switch action {
	case ActionLaunch, ActionNavigate, ActionClick, ActionType, ActionPress,
		ActionWait, ActionScreenshot, ActionSnapshot, ActionContent,
		ActionEvaluate, ActionScroll, ActionHover, ActionSelect, ActionClose:
		return true
	}
	return false
}

// ErrorCode classifies failure responses.
type ErrorCode string

const (
	ErrMalformedPayload  ErrorCode = "malformed_payload"
	ErrUnknownAction     ErrorCode = "unknown_action"
	ErrMissingID         ErrorCode = "missing_id"
	ErrMissingField      ErrorCode = "missing_field"
	ErrAcquisitionFailed ErrorCode = "acquisition_failed"
	ErrExecutionFailed   ErrorCode = "execution_failed"
	ErrTransport         ErrorCode = "transport_error"
	ErrBindConflict      ErrorCode = "bind_conflict"
	ErrInternal          ErrorCode = "internal"
)

// OKResponse builds a success response carrying data.
func OKResponse(id string, data map[string]any) *Response {
	if data == nil {
		data = map[string]any{}
	}
	return &Response{ID: id, Success: true, Data: data}
}

// ErrorResponse builds a failure response with a code-prefixed message.
func ErrorResponse(id string, code ErrorCode, message string) *Response {
	if id == "" {
		id = FallbackID
	}
	return &Response{ID: id, Success: false, Error: string(code) + ": " + message}
}

// MarshalData is a convenience for handlers that already hold a typed result.
func MarshalData(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
