package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/optimeas/opticloud-device-mgmt-go/record"
)

// cloudStub is a fake entry endpoint that records the requests it saw.
type cloudStub struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   [][]byte
	handler  func(w http.ResponseWriter, r *http.Request)
}

func newCloudStub(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*cloudStub, *httptest.Server) {
	t.Helper()
	stub := &cloudStub{handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		stub.mu.Lock()
		stub.requests = append(stub.requests, r)
		stub.bodies = append(stub.bodies, body)
		stub.mu.Unlock()
		stub.handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return stub, srv
}

func (s *cloudStub) last(t *testing.T) (*http.Request, []byte) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatal("no request reached the server")
	}
	return s.requests[len(s.requests)-1], s.bodies[len(s.bodies)-1]
}

func (s *cloudStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func runSend(t *testing.T, args ...string) (int, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newTestApp(&out, &errOut)
	argv := append([]string{"omcloud", "send", "--log-level", "error", "--format", "json"}, args...)
	err := app.Run(argv)
	return exitCode(err), &out, &errOut
}

func decodeReport(t *testing.T, out *bytes.Buffer) TransferReport {
	t.Helper()
	var rep TransferReport
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, out.String())
	}
	return rep
}

func TestSend_PingReturnOK(t *testing.T) {
	stub, srv := newCloudStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	code, out, errOut := runSend(t, "--url", srv.URL, "--token", "DEV-1")
	if code != exitSuccess {
		t.Fatalf("exit = %d, want 0 (stderr: %s)", code, errOut.String())
	}

	rep := decodeReport(t, out)
	if rep.Result != "RETURN_OK" || rep.Category != "ok" || rep.StatusCode != http.StatusNoContent {
		t.Errorf("report = %+v", rep)
	}
	if rep.Request != "PING" || rep.Protocol != "v4" || rep.TransferID == "" {
		t.Errorf("report identity = %+v", rep)
	}

	req, _ := stub.last(t)
	if req.Method != http.MethodPost || req.URL.Path != "/status.php" {
		t.Errorf("request = %s %s", req.Method, req.URL.Path)
	}
	q := req.URL.Query()
	if q.Get("F") != "PING" || q.Get("ID") != "DEV-1" || q.Get("P") != "v4" || q.Get("T") == "" {
		t.Errorf("query = %v", q)
	}
	if req.Header.Get("Cache-Control") != "no-cache, no-store" {
		t.Errorf("Cache-Control = %q", req.Header.Get("Cache-Control"))
	}
}

func TestSend_TaskResponse(t *testing.T) {
	_, srv := newCloudStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/om-bash")
		w.Header().Set("Content-Description", "Message-ID: 42")
		_, _ = io.WriteString(w, "echo hello\n")
	})

	code, out, _ := runSend(t, "--url", srv.URL, "--token", "DEV-1", "--protocol", "v6")
	if code != exitSuccess {
		t.Fatalf("exit = %d, want 0 for a task", code)
	}

	rep := decodeReport(t, out)
	if rep.Result != "TASK_EXECUTE_SCRIPT" || rep.Category != "task" {
		t.Errorf("result = %s/%s", rep.Result, rep.Category)
	}
	if rep.MessageID != "42" {
		t.Errorf("message_id = %q, want 42", rep.MessageID)
	}
	if rep.Response != "echo hello\n" {
		t.Errorf("response = %q", rep.Response)
	}
}

func TestSend_OutputFile(t *testing.T) {
	_, srv := newCloudStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/om-request-file")
		w.Header().Set("Content-Description", "Message-ID: 9, File-Tag: cfg")
		_, _ = io.WriteString(w, "/etc/om/device.conf")
	})
	outPath := filepath.Join(t.TempDir(), "task.bin")

	code, out, _ := runSend(t, "--url", srv.URL, "--token", "DEV-1", "-o", outPath)
	if code != exitSuccess {
		t.Fatalf("exit = %d", code)
	}
	rep := decodeReport(t, out)
	if rep.Output != outPath || rep.FileTag != "cfg" {
		t.Errorf("report = %+v", rep)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "/etc/om/device.conf" {
		t.Errorf("output file = %q", got)
	}
}

func TestSend_ReturnWithCorrelation(t *testing.T) {
	stub, srv := newCloudStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	code, _, _ := runSend(t,
		"--url", srv.URL+"/entry/status.php", "--token", "DEV-1",
		"--request", "RETURN_SCRIPT", "--message-id", "0042",
		"--data", "exit 0", "--data-filename", "result.txt",
	)
	if code != exitSuccess {
		t.Fatalf("exit = %d", code)
	}

	req, body := stub.last(t)
	if req.URL.Path != "/entry/status.php" {
		t.Errorf("path = %q, want configured path kept", req.URL.Path)
	}
	if req.URL.Query().Get("F") != "RETURN_BASH" {
		t.Errorf("F = %q", req.URL.Query().Get("F"))
	}
	if got := req.Header.Get("Content-Description"); got != "Message-ID: 42" {
		t.Errorf("Content-Description = %q", got)
	}
	if !strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/form-data") {
		t.Errorf("Content-Type = %q", req.Header.Get("Content-Type"))
	}
	if !bytes.Contains(body, []byte(`filename="result.txt"`)) || !bytes.Contains(body, []byte("exit 0")) {
		t.Errorf("multipart body missing upload:\n%s", body)
	}
}

func TestSend_ExitCodes(t *testing.T) {
	_, notFound := newCloudStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	closed := httptest.NewServer(http.NotFoundHandler())
	unreachable := closed.URL
	closed.Close()

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"protocol error", []string{"--url", notFound.URL, "--token", "x"}, exitProtocolError},
		{"transport error", []string{"--url", unreachable, "--token", "x"}, exitTransportError},
		{"missing token", []string{"--url", notFound.URL}, exitConfigError},
		{"bad url", []string{"--url", "://nope", "--token", "x"}, exitConfigError},
		{"unknown request", []string{"--url", notFound.URL, "--token", "x", "--request", "REBOOT"}, exitConfigError},
		{"unknown protocol", []string{"--url", notFound.URL, "--token", "x", "--protocol", "v9"}, exitConfigError},
		{"abort needs v6", []string{"--url", notFound.URL, "--token", "x", "--request", "RETURN_ABORT_ASYNCHRONOUS_TASK"}, exitConfigError},
		{"upload and data", []string{"--url", notFound.URL, "--token", "x", "--upload-file", "a", "--data", "b"}, exitConfigError},
		{"missing config file", []string{"--config", "/nonexistent/omcloud.yaml"}, exitConfigError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runSend(t, tt.args...)
			if code != tt.want {
				t.Errorf("exit = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestSend_TransportErrorReport(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()

	code, out, _ := runSend(t, "--url", url, "--token", "x")
	if code != exitTransportError {
		t.Fatalf("exit = %d", code)
	}
	rep := decodeReport(t, out)
	if rep.Result != "CURL_ERROR" || rep.Category != "transport" {
		t.Errorf("result = %s/%s", rep.Result, rep.Category)
	}
	if rep.TransportCode == 0 || rep.TransportError == "" {
		t.Errorf("transport details missing: %+v", rep)
	}
}

func TestSend_Quiet(t *testing.T) {
	_, srv := newCloudStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	code, out, _ := runSend(t, "--url", srv.URL, "--token", "x", "--quiet")
	if code != exitSuccess {
		t.Fatalf("exit = %d", code)
	}
	if out.Len() != 0 {
		t.Errorf("--quiet should print nothing, got %q", out.String())
	}
}

func TestSend_ConfigFile(t *testing.T) {
	stub, srv := newCloudStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	journal := filepath.Join(t.TempDir(), "journal.omj")
	cfgPath := filepath.Join(t.TempDir(), "omcloud.yaml")
	t.Setenv("OMCLOUD_TEST_TOKEN", "FROM-ENV")
	cfg := "protocol: v5\n" +
		"connection:\n" +
		"  url: " + srv.URL + "\n" +
		"  access_token: ${OMCLOUD_TEST_TOKEN}\n" +
		"record:\n" +
		"  path: " + journal + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	code, out, errOut := runSend(t, "--config", cfgPath)
	if code != exitSuccess {
		t.Fatalf("exit = %d (stderr: %s)", code, errOut.String())
	}
	if rep := decodeReport(t, out); rep.Protocol != "v5" {
		t.Errorf("protocol = %q, want v5 from config", rep.Protocol)
	}
	req, _ := stub.last(t)
	if req.URL.Query().Get("ID") != "FROM-ENV" {
		t.Errorf("ID = %q, want expanded token", req.URL.Query().Get("ID"))
	}

	res, err := record.ReadFile(journal)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0].Result != "RETURN_OK" {
		t.Errorf("journal records = %+v", res.Records)
	}
	if res.Records[0].Endpoint != srv.URL {
		t.Errorf("endpoint = %q", res.Records[0].Endpoint)
	}
}

func TestSend_RecordAppends(t *testing.T) {
	_, srv := newCloudStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	journal := filepath.Join(t.TempDir(), "journal.omj")

	for range 2 {
		if code, _, _ := runSend(t, "--url", srv.URL, "--token", "x", "--record", journal, "--quiet"); code != exitSuccess {
			t.Fatalf("exit = %d", code)
		}
	}

	res, err := record.ReadFile(journal)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(res.Records))
	}
	if res.Records[0].TransferID == res.Records[1].TransferID {
		t.Error("each send should get its own transfer ID")
	}
}

func TestSend_WebhookAdapter(t *testing.T) {
	_, srv := newCloudStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/om-request-list")
		w.Header().Set("Content-Description", "Message-ID: 5")
		w.WriteHeader(http.StatusOK)
	})

	events := make(chan map[string]any, 1)
	var gotHeader string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Fleet")
		var ev map[string]any
		_ = json.NewDecoder(r.Body).Decode(&ev)
		events <- ev
		w.WriteHeader(http.StatusAccepted)
	}))
	defer hook.Close()

	code, _, _ := runSend(t, "--url", srv.URL, "--token", "x", "--quiet",
		"--adapter", "webhook", "--adapter-url", hook.URL, "--adapter-header", "X-Fleet=north")
	if code != exitSuccess {
		t.Fatalf("exit = %d", code)
	}

	select {
	case ev := <-events:
		if ev["event_type"] != "transfer_completed" || ev["result"] != "TASK_REQUEST_LIST" || ev["message_id"] != "5" {
			t.Errorf("event = %v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not called")
	}
	if gotHeader != "north" {
		t.Errorf("X-Fleet = %q", gotHeader)
	}
}

func TestSend_AdapterFailureKeepsExitCode(t *testing.T) {
	_, srv := newCloudStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer hook.Close()

	code, out, _ := runSend(t, "--url", srv.URL, "--token", "x",
		"--adapter", "webhook", "--adapter-url", hook.URL, "--adapter-retries", "0")
	if code != exitSuccess {
		t.Errorf("exit = %d, a failed publish must not change the result", code)
	}
	if rep := decodeReport(t, out); rep.Result != "RETURN_OK" {
		t.Errorf("result = %q", rep.Result)
	}
}

func TestSend_AdapterMisconfigured(t *testing.T) {
	stub, srv := newCloudStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	code, _, _ := runSend(t, "--url", srv.URL, "--token", "x", "--adapter", "kafka", "--adapter-url", "x")
	if code != exitConfigError {
		t.Errorf("exit = %d, want %d", code, exitConfigError)
	}
	if stub.count() != 0 {
		t.Error("no transfer should run with a bad adapter")
	}
}

func TestResultToExitCode(t *testing.T) {
	stub, srv := newCloudStub(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	code, out, _ := runSend(t, "--url", srv.URL, "--token", "x")
	if code != exitProtocolError {
		t.Errorf("exit = %d", code)
	}
	if rep := decodeReport(t, out); rep.Result != "UNKNOWN_RESPONSE" || rep.StatusCode != http.StatusTeapot {
		t.Errorf("report = %+v", rep)
	}
	if stub.count() != 1 {
		t.Errorf("requests = %d", stub.count())
	}
}
