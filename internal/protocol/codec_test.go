package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeCommand_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Command
	}{
		{
			name:  "navigate",
			input: `{"id":"a1","action":"navigate","url":"https://example.com"}`,
			want:  Command{ID: "a1", Action: "navigate", URL: "https://example.com"},
		},
		{
			name:  "close",
			input: `{"id":"b2","action":"close"}`,
			want:  Command{ID: "b2", Action: "close"},
		},
		{
			name:  "click with selector",
			input: `{"id":"c3","action":"click","selector":"#submit"}`,
			want:  Command{ID: "c3", Action: "click", Selector: "#submit"},
		},
		{
			name:  "launch with options",
			input: `{"id":"d4","action":"launch","engine":"chromium","width":1280,"height":800}`,
			want:  Command{ID: "d4", Action: "launch", Engine: "chromium", Width: 1280, Height: 800},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, errResp := DecodeCommand([]byte(tt.input))
			if errResp != nil {
				t.Fatalf("DecodeCommand() error response: %+v", errResp)
			}
			if cmd.ID != tt.want.ID || cmd.Action != tt.want.Action {
				t.Errorf("got id=%q action=%q, want id=%q action=%q",
					cmd.ID, cmd.Action, tt.want.ID, tt.want.Action)
			}
			if cmd.URL != tt.want.URL {
				t.Errorf("URL = %q, want %q", cmd.URL, tt.want.URL)
			}
			if cmd.Selector != tt.want.Selector {
				t.Errorf("Selector = %q, want %q", cmd.Selector, tt.want.Selector)
			}
			if cmd.Width != tt.want.Width || cmd.Height != tt.want.Height {
				t.Errorf("viewport = %dx%d, want %dx%d",
					cmd.Width, cmd.Height, tt.want.Width, tt.want.Height)
			}
		})
	}
}

func TestDecodeCommand_Failures(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantID   string
		wantCode ErrorCode
	}{
		{
			name:     "not json",
			input:    `not json`,
			wantID:   FallbackID,
			wantCode: ErrMalformedPayload,
		},
		{
			name:     "valid prefix with trailing garbage keeps id",
			input:    `{"id":"x9","action":"click"} trailing`,
			wantID:   "x9",
			wantCode: ErrMalformedPayload,
		},
		{
			name:     "missing id",
			input:    `{"action":"navigate","url":"https://example.com"}`,
			wantID:   FallbackID,
			wantCode: ErrMissingID,
		},
		{
			name:     "missing action",
			input:    `{"id":"a1"}`,
			wantID:   "a1",
			wantCode: ErrMissingField,
		},
		{
			name:     "unknown action",
			input:    `{"id":"a1","action":"teleport"}`,
			wantID:   "a1",
			wantCode: ErrUnknownAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, errResp := DecodeCommand([]byte(tt.input))
			if cmd != nil {
				t.Fatalf("expected error response, got command %+v", cmd)
			}
			if errResp == nil {
				t.Fatal("expected error response, got nil")
			}
			if errResp.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", errResp.ID, tt.wantID)
			}
			if errResp.Success {
				t.Error("error response has success=true")
			}
			if !strings.HasPrefix(errResp.Error, string(tt.wantCode)) {
				t.Errorf("Error = %q, want prefix %q", errResp.Error, tt.wantCode)
			}
			if errResp.Data != nil {
				t.Error("error response must not carry data")
			}
		})
	}
}

func TestEncodeResponse_SingleLine(t *testing.T) {
	resp := OKResponse("a1", map[string]any{
		"title": "line one\nline two",
		"url":   "https://example.com",
	})

	raw, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse() error: %v", err)
	}
	if !bytes.HasSuffix(raw, []byte("\n")) {
		t.Error("encoded frame missing trailing delimiter")
	}
	if bytes.Count(raw, []byte("\n")) != 1 {
		t.Errorf("encoded frame contains embedded newlines: %q", raw)
	}

	// The escaped payload must still round-trip.
	var got Response
	if err := json.Unmarshal(bytes.TrimSuffix(raw, []byte("\n")), &got); err != nil {
		t.Fatalf("round-trip unmarshal: %v", err)
	}
	if got.Data["title"] != "line one\nline two" {
		t.Errorf("title = %q after round trip", got.Data["title"])
	}
}

func TestRoundTrip_IDAndAction(t *testing.T) {
	for _, action := range ValidActions {
		cmd := &Command{ID: "rt-" + action, Action: action}
		raw, err := EncodeCommand(cmd)
		if err != nil {
			t.Fatalf("EncodeCommand(%s): %v", action, err)
		}
		got, errResp := DecodeCommand(bytes.TrimSuffix(raw, []byte("\n")))
		if errResp != nil {
			t.Fatalf("DecodeCommand(%s): %+v", action, errResp)
		}
		if got.ID != cmd.ID || got.Action != cmd.Action {
			t.Errorf("round trip got id=%q action=%q, want id=%q action=%q",
				got.ID, got.Action, cmd.ID, cmd.Action)
		}
	}
}

func TestResponse_DataErrorExclusive(t *testing.T) {
	ok := OKResponse("a", map[string]any{"done": true})
	if !ok.Success || ok.Data == nil || ok.Error != "" {
		t.Errorf("OKResponse invariant violated: %+v", ok)
	}

	fail := ErrorResponse("a", ErrExecutionFailed, "boom")
	if fail.Success || fail.Data != nil || fail.Error == "" {
		t.Errorf("ErrorResponse invariant violated: %+v", fail)
	}
}

func TestErrorResponse_EmptyIDFallsBack(t *testing.T) {
	resp := ErrorResponse("", ErrInternal, "oops")
	if resp.ID != FallbackID {
		t.Errorf("ID = %q, want %q", resp.ID, FallbackID)
	}
}
