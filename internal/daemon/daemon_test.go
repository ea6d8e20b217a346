package daemon

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/standardbeagle/webpilot/internal/config"
	"github.com/standardbeagle/webpilot/internal/protocol"
)

func startTestDaemon(t *testing.T) (*Daemon, *fakeSession) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "wp.sock")

	fake := &fakeSession{}
	d := New(cfg, fake)
	if err := d.Start(); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(d.Shutdown)
	return d, fake
}

func dialDaemon(t *testing.T, d *Daemon) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("unix", d.SocketPath())
	if err != nil {
		t.Fatalf("dial daemon: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func readResponse(t *testing.T, r *bufio.Reader) *protocol.Response {
	t.Helper()
	line, err := r.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp, err := protocol.DecodeResponse(line)
	if err != nil {
		t.Fatalf("decode response %q: %v", line, err)
	}
	return resp
}

func TestDaemon_NavigateRoundTrip(t *testing.T) {
	d, fake := startTestDaemon(t)
	conn, r := dialDaemon(t, d)

	frame := `{"id":"a1","action":"navigate","url":"https://example.com"}` + "\n"
	if _, err := conn.Write([]byte(frame)); err != nil {
		t.Fatal(err)
	}

	resp := readResponse(t, r)
	if resp.ID != "a1" || !resp.Success {
		t.Fatalf("response = %+v", resp)
	}
	st := fake.snapshot()
	if st.acquires != 1 {
		t.Errorf("acquires = %d, want implicit acquisition", st.acquires)
	}
	if len(st.executed) != 1 || st.executed[0] != "navigate" {
		t.Errorf("executed = %v", st.executed)
	}
}

func TestDaemon_FragmentedFrame(t *testing.T) {
	d, fake := startTestDaemon(t)
	conn, r := dialDaemon(t, d)

	// A frame split across two writes must still be processed exactly once.
	if _, err := conn.Write([]byte(`{"id":"f1","action":"navi`)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, err := conn.Write([]byte("gate\",\"url\":\"https://example.com\"}\n")); err != nil {
		t.Fatal(err)
	}

	resp := readResponse(t, r)
	if resp.ID != "f1" || !resp.Success {
		t.Fatalf("response = %+v", resp)
	}
	if st := fake.snapshot(); len(st.executed) != 1 {
		t.Errorf("executed %d times, want exactly once", len(st.executed))
	}
}

func TestDaemon_MultipleFramesInOneWrite(t *testing.T) {
	d, _ := startTestDaemon(t)
	conn, r := dialDaemon(t, d)

	frames := `{"id":"m1","action":"snapshot"}` + "\n" +
		`{"id":"m2","action":"snapshot"}` + "\n"
	if _, err := conn.Write([]byte(frames)); err != nil {
		t.Fatal(err)
	}

	// Responses come back in command order, never reordered.
	first := readResponse(t, r)
	second := readResponse(t, r)
	if first.ID != "m1" || second.ID != "m2" {
		t.Errorf("response order = %s, %s; want m1, m2", first.ID, second.ID)
	}
}

func TestDaemon_MalformedFrame(t *testing.T) {
	d, _ := startTestDaemon(t)
	conn, r := dialDaemon(t, d)

	if _, err := conn.Write([]byte("not json\n")); err != nil {
		t.Fatal(err)
	}

	resp := readResponse(t, r)
	if resp.Success {
		t.Fatal("malformed frame must fail")
	}
	if resp.ID != protocol.FallbackID {
		t.Errorf("ID = %q, want fallback", resp.ID)
	}
	if !strings.Contains(resp.Error, string(protocol.ErrMalformedPayload)) {
		t.Errorf("error = %q, want malformed_payload", resp.Error)
	}

	// The connection survives and keeps serving.
	if _, err := conn.Write([]byte(`{"id":"ok1","action":"snapshot"}` + "\n")); err != nil {
		t.Fatal(err)
	}
	if resp := readResponse(t, r); resp.ID != "ok1" || !resp.Success {
		t.Errorf("follow-up response = %+v", resp)
	}
}

func TestDaemon_BlankLinesIgnored(t *testing.T) {
	d, _ := startTestDaemon(t)
	conn, r := dialDaemon(t, d)

	if _, err := conn.Write([]byte("\n  \n" + `{"id":"b1","action":"snapshot"}` + "\n")); err != nil {
		t.Fatal(err)
	}
	if resp := readResponse(t, r); resp.ID != "b1" || !resp.Success {
		t.Errorf("response = %+v", resp)
	}
}

func TestDaemon_CloseShutdownSequence(t *testing.T) {
	d, fake := startTestDaemon(t)
	conn, r := dialDaemon(t, d)

	if _, err := conn.Write([]byte(`{"id":"b2","action":"close"}` + "\n")); err != nil {
		t.Fatal(err)
	}

	// The close response is delivered before the daemon tears down.
	resp := readResponse(t, r)
	if !resp.Success || resp.Data["closed"] != true {
		t.Fatalf("close response = %+v", resp)
	}

	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down after close")
	}

	if st := fake.snapshot(); st.releases == 0 {
		t.Error("browser not released on shutdown")
	}
	if _, err := os.Stat(d.SocketPath()); !os.IsNotExist(err) {
		t.Error("socket not removed after shutdown")
	}
	if _, err := os.Stat(PIDPathFor(d.SocketPath())); !os.IsNotExist(err) {
		t.Error("marker not removed after shutdown")
	}
	if IsRunning(d.SocketPath()) {
		t.Error("IsRunning should be false after shutdown")
	}
}

func TestDaemon_ClosePipelinedCommandNeverAnswered(t *testing.T) {
	d, fake := startTestDaemon(t)
	conn, r := dialDaemon(t, d)

	// A command pipelined behind close in the same write must never produce
	// a response against a browser that is being torn down.
	frames := `{"id":"b2","action":"close"}` + "\n" +
		`{"id":"z9","action":"snapshot"}` + "\n"
	if _, err := conn.Write([]byte(frames)); err != nil {
		t.Fatal(err)
	}

	resp := readResponse(t, r)
	if resp.ID != "b2" || !resp.Success {
		t.Fatalf("close response = %+v", resp)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if line, err := r.ReadBytes('\n'); err == nil {
		t.Fatalf("pipelined command answered after close: %q", line)
	}

	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down after close")
	}
	if st := fake.snapshot(); len(st.executed) != 0 {
		t.Errorf("executed = %v, want nothing after close", st.executed)
	}
}

func TestDaemon_ShutdownIdempotent(t *testing.T) {
	d, _ := startTestDaemon(t)

	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		go func() {
			d.Shutdown()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("concurrent Shutdown did not return")
		}
	}
}

func TestDaemon_SecondInstanceFailsFast(t *testing.T) {
	d, _ := startTestDaemon(t)

	cfg := config.DefaultConfig()
	cfg.SocketPath = d.SocketPath()
	second := New(cfg, &fakeSession{})
	if err := second.Start(); err == nil {
		second.Shutdown()
		t.Fatal("second daemon on same socket should fail to start")
	}

	// First instance is unaffected.
	conn, r := dialDaemon(t, d)
	if _, err := conn.Write([]byte(`{"id":"s1","action":"snapshot"}` + "\n")); err != nil {
		t.Fatal(err)
	}
	if resp := readResponse(t, r); !resp.Success {
		t.Errorf("first daemon broken after conflict: %+v", resp)
	}
}

func TestClient_Do(t *testing.T) {
	d, _ := startTestDaemon(t)

	client := NewClient(WithSocketPath(d.SocketPath()), WithTimeout(5*time.Second))
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	resp, err := client.Do(&protocol.Command{ID: "c1", Action: protocol.ActionSnapshot})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.ID != "c1" || !resp.Success {
		t.Errorf("response = %+v", resp)
	}
}

func TestClient_DoNotConnected(t *testing.T) {
	client := NewClient(WithSocketPath(filepath.Join(t.TempDir(), "none.sock")))
	if _, err := client.Do(&protocol.Command{ID: "x", Action: protocol.ActionSnapshot}); err != ErrNotConnected {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestStopDaemon(t *testing.T) {
	d, _ := startTestDaemon(t)

	if err := StopDaemon(d.SocketPath()); err != nil {
		t.Fatalf("StopDaemon: %v", err)
	}
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestStopDaemon_NotRunning(t *testing.T) {
	if err := StopDaemon(filepath.Join(t.TempDir(), "none.sock")); err != nil {
		t.Errorf("StopDaemon on absent daemon should be a no-op, got %v", err)
	}
}

func TestDaemon_ResponseIsOneJSONLine(t *testing.T) {
	d, _ := startTestDaemon(t)
	conn, r := dialDaemon(t, d)

	if _, err := conn.Write([]byte(`{"id":"j1","action":"snapshot"}` + "\n")); err != nil {
		t.Fatal(err)
	}

	line, err := r.ReadBytes('\n')
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(line, &decoded); err != nil {
		t.Errorf("response is not a single JSON line: %v", err)
	}
}
