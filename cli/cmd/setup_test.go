package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/urfave/cli/v2"

	omconfig "github.com/optimeas/opticloud-device-mgmt-go/cli/config"
	"github.com/optimeas/opticloud-device-mgmt-go/entry"
	"github.com/optimeas/opticloud-device-mgmt-go/log"
	"github.com/optimeas/opticloud-device-mgmt-go/record"
	"github.com/optimeas/opticloud-device-mgmt-go/transport"
	"github.com/optimeas/opticloud-device-mgmt-go/types"
)

// withContext runs fn inside a real urfave action so slice flags and
// IsSet behave as they do from the command line.
func withContext(t *testing.T, flags []cli.Flag, args []string, fn func(c *cli.Context)) {
	t.Helper()
	app := cli.NewApp()
	app.Flags = flags
	ran := false
	app.Action = func(c *cli.Context) error {
		ran = true
		fn(c)
		return nil
	}
	if err := app.Run(append([]string{"test"}, args...)); err != nil {
		t.Fatalf("app.Run: %v", err)
	}
	if !ran {
		t.Fatal("action did not run")
	}
}

func connectionTestFlags() []cli.Flag {
	return joinFlags(ConnectionFlags(), []cli.Flag{RecordFlag}, AdapterFlags(), LogFlags())
}

func boolPtr(b bool) *bool { return &b }

func TestResolveConnection_Defaults(t *testing.T) {
	withContext(t, connectionTestFlags(), []string{"--url", "https://cloud.example.com", "--token", "tok"}, func(c *cli.Context) {
		p, version, err := resolveConnection(c, nil)
		if err != nil {
			t.Fatalf("resolveConnection: %v", err)
		}
		if p.URL != "https://cloud.example.com" || p.AccessToken != "tok" {
			t.Errorf("params = %+v", p)
		}
		if !p.VerifyTLS || !p.ReuseConnection {
			t.Error("TLS verification and reuse should default on")
		}
		if p.ProgressTimeout != entry.DefaultProgressTimeout {
			t.Errorf("ProgressTimeout = %v", p.ProgressTimeout)
		}
		if version != types.ProtocolV4 {
			t.Errorf("version = %v, want v4", version)
		}
	})
}

func TestResolveConnection_FlagsOverConfig(t *testing.T) {
	cfg := &omconfig.Config{
		Protocol: "v5",
		Connection: omconfig.ConnectionConfig{
			URL:             "https://config.example.com/entry/status.php",
			AccessToken:     "config-token",
			HostAlias:       "om.internal",
			VerifyTLS:       boolPtr(false),
			ProgressTimeout: omconfig.Duration{Duration: time.Minute},
		},
	}

	args := []string{"--token", "cli-token", "--no-reuse", "--protocol", "v6", "--progress-timeout", "5s"}
	withContext(t, connectionTestFlags(), args, func(c *cli.Context) {
		p, version, err := resolveConnection(c, cfg)
		if err != nil {
			t.Fatalf("resolveConnection: %v", err)
		}
		if p.URL != "https://config.example.com/entry/status.php" || p.HostAlias != "om.internal" {
			t.Errorf("config values lost: %+v", p)
		}
		if p.AccessToken != "cli-token" {
			t.Errorf("AccessToken = %q, want CLI value", p.AccessToken)
		}
		if p.VerifyTLS {
			t.Error("config verify_tls: false should be kept")
		}
		if p.ReuseConnection {
			t.Error("--no-reuse should disable reuse")
		}
		if p.ProgressTimeout != 5*time.Second {
			t.Errorf("ProgressTimeout = %v, want CLI 5s", p.ProgressTimeout)
		}
		if version != types.ProtocolV6 {
			t.Errorf("version = %v, want v6", version)
		}
	})
}

func TestResolveConnection_InsecureOverridesConfig(t *testing.T) {
	cfg := &omconfig.Config{Connection: omconfig.ConnectionConfig{VerifyTLS: boolPtr(true)}}
	withContext(t, connectionTestFlags(), []string{"--insecure"}, func(c *cli.Context) {
		p, _, err := resolveConnection(c, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if p.VerifyTLS {
			t.Error("--insecure should disable verification")
		}
	})
}

func TestResolveConnection_InvalidProtocol(t *testing.T) {
	withContext(t, connectionTestFlags(), []string{"--protocol", "v3"}, func(c *cli.Context) {
		if _, _, err := resolveConnection(c, nil); err == nil {
			t.Error("expected error for unknown protocol")
		}
	})
}

// --- parseAdapterConfigWithPrecedence ---

// newAdapterTestContext builds a CLI context with adapter-related flags.
func newAdapterTestContext(t *testing.T, flags map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "adapter-url"},
		&cli.StringFlag{Name: "adapter-channel"},
		&cli.StringFlag{Name: "adapter-list-key"},
		&cli.DurationFlag{Name: "adapter-timeout", Value: 10 * time.Second},
		&cli.IntFlag{Name: "adapter-retries", Value: 3},
		&cli.StringSliceFlag{Name: "adapter-header"},
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("adapter-url", "", "")
	fs.String("adapter-channel", "", "")
	fs.String("adapter-list-key", "", "")
	fs.Duration("adapter-timeout", 10*time.Second, "")
	fs.Int("adapter-retries", 3, "")

	for name, val := range flags {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}

	// Header slices need the full app.Run path; see
	// TestParseAdapterConfig_MalformedHeader.
	return cli.NewContext(app, fs, nil)
}

func TestParseAdapterConfig_WebhookValid(t *testing.T) {
	c := newAdapterTestContext(t, map[string]string{
		"adapter-url": "https://hooks.example.com/omcloud",
	})

	ac, err := parseAdapterConfigWithPrecedence(c, nil, "webhook")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ac.adapterType != "webhook" || ac.url != "https://hooks.example.com/omcloud" {
		t.Errorf("choice = %+v", ac)
	}
	if ac.retries != 3 || ac.timeout != 10*time.Second {
		t.Errorf("defaults = %d/%v", ac.retries, ac.timeout)
	}
}

func TestParseAdapterConfig_MissingURL(t *testing.T) {
	for _, typ := range []string{"webhook", "redis"} {
		t.Run(typ, func(t *testing.T) {
			c := newAdapterTestContext(t, nil)
			_, err := parseAdapterConfigWithPrecedence(c, nil, typ)
			if err == nil {
				t.Fatal("expected error for missing URL")
			}
			if !strings.Contains(err.Error(), "--adapter-url is required when --adapter="+typ) {
				t.Errorf("error should mention URL requirement, got: %v", err)
			}
		})
	}
}

func TestParseAdapterConfig_UnknownType(t *testing.T) {
	c := newAdapterTestContext(t, map[string]string{"adapter-url": "https://example.com"})

	_, err := parseAdapterConfigWithPrecedence(c, nil, "kafka")
	if err == nil {
		t.Fatal("expected error for unknown adapter type")
	}
	if !strings.Contains(err.Error(), "unknown adapter type") || !strings.Contains(err.Error(), "kafka") {
		t.Errorf("error should name the bad type, got: %v", err)
	}
}

func TestParseAdapterConfig_ConfigValues(t *testing.T) {
	retries := 5
	cfg := &omconfig.Config{
		Adapter: omconfig.AdapterConfig{
			URL:       "redis://localhost:6379/0",
			Channel:   "fleet:events",
			ListKey:   "fleet:recent",
			ListLimit: 20,
			Retries:   &retries,
			Timeout:   omconfig.Duration{Duration: 2 * time.Second},
			Headers:   map[string]string{"X-Api-Key": "secret"},
		},
	}

	c := newAdapterTestContext(t, nil)
	ac, err := parseAdapterConfigWithPrecedence(c, cfg, "redis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ac.url != "redis://localhost:6379/0" || ac.channel != "fleet:events" || ac.listKey != "fleet:recent" || ac.listLimit != 20 {
		t.Errorf("config values not used: %+v", ac)
	}
	if ac.retries != 5 || ac.timeout != 2*time.Second {
		t.Errorf("retries/timeout = %d/%v", ac.retries, ac.timeout)
	}
	if ac.headers["X-Api-Key"] != "secret" {
		t.Errorf("headers = %v", ac.headers)
	}
}

func TestParseAdapterConfig_CLIOverridesConfig(t *testing.T) {
	retries := 5
	cfg := &omconfig.Config{Adapter: omconfig.AdapterConfig{URL: "https://config.example.com", Retries: &retries}}

	c := newAdapterTestContext(t, map[string]string{
		"adapter-url":     "https://cli.example.com",
		"adapter-retries": "0",
	})
	ac, err := parseAdapterConfigWithPrecedence(c, cfg, "webhook")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ac.url != "https://cli.example.com" {
		t.Errorf("CLI should override config URL, got %q", ac.url)
	}
	if ac.retries != 0 {
		t.Errorf("explicit --adapter-retries 0 should win, got %d", ac.retries)
	}
}

func TestParseAdapterConfig_Headers(t *testing.T) {
	cfg := &omconfig.Config{Adapter: omconfig.AdapterConfig{Headers: map[string]string{"X-Source": "config", "X-Keep": "1"}}}
	args := []string{"--adapter-url", "https://example.com", "--adapter-header", "X-Source=cli", "--adapter-header", "X-Token=a=b"}

	withContext(t, AdapterFlags(), args, func(c *cli.Context) {
		ac, err := parseAdapterConfigWithPrecedence(c, cfg, "webhook")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := map[string]string{"X-Source": "cli", "X-Keep": "1", "X-Token": "a=b"}
		for k, v := range want {
			if ac.headers[k] != v {
				t.Errorf("header %s = %q, want %q", k, ac.headers[k], v)
			}
		}
	})
}

func TestParseAdapterConfig_MalformedHeader(t *testing.T) {
	args := []string{"--adapter-url", "https://example.com", "--adapter-header", "no-equals-sign"}

	withContext(t, AdapterFlags(), args, func(c *cli.Context) {
		_, err := parseAdapterConfigWithPrecedence(c, nil, "webhook")
		if err == nil {
			t.Fatal("expected error for malformed header")
		}
		if !strings.Contains(err.Error(), "invalid --adapter-header") || !strings.Contains(err.Error(), "key=value") {
			t.Errorf("error should suggest key=value format, got: %v", err)
		}
	})
}

// --- session ---

type syncSubmitter struct {
	completion *transport.Completion
	calls      int
}

func (s *syncSubmitter) Submit(_ context.Context, _ *transport.Request, onComplete func(*transport.Completion)) (*transport.Handle, error) {
	s.calls++
	onComplete(s.completion)
	return nil, nil
}

func taskCompletion() *transport.Completion {
	return &transport.Completion{
		Outcome:    transport.OutcomeDone,
		Code:       transport.CodeOK,
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Content-Type":        {"application/om-request-list"},
			"Content-Description": {"Message-ID: 77"},
		},
		Stats: transport.Stats{BytesSent: 300, BytesReceived: 40, Duration: 20 * time.Millisecond},
	}
}

func testParams() *entry.ConnectionParameters {
	p := entry.DefaultConnectionParameters()
	p.URL = "https://cloud.example.com"
	p.AccessToken = "tok"
	return &p
}

func TestSession_FinishFansOut(t *testing.T) {
	mr := miniredis.RunT(t)
	journal := filepath.Join(t.TempDir(), "journal.omj")
	args := []string{
		"--record", journal,
		"--adapter", "redis",
		"--adapter-url", "redis://" + mr.Addr(),
		"--adapter-list-key", "omcloud:recent",
		"--adapter-retries", "0",
	}

	withContext(t, connectionTestFlags(), args, func(c *cli.Context) {
		s, err := newSession(c, nil, log.Nop(), testParams(), types.ProtocolV6)
		if err != nil {
			t.Fatalf("newSession: %v", err)
		}
		frozen := time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC)
		s.now = func() time.Time { return frozen }

		tr := entry.New(testParams(), entry.WithID("tx-fan"))
		tr.SetProtocolVersion(types.ProtocolV6)
		if err := s.start(t.Context(), tr, &syncSubmitter{completion: taskCompletion()}); err != nil {
			t.Fatalf("start: %v", err)
		}
		<-tr.Done()
		s.finish(tr)
		s.close()

		snap := s.collector.Snapshot()
		if snap.TransfersStarted != 1 || snap.TransfersCompleted != 1 || snap.ByResult["TASK_REQUEST_LIST"] != 1 {
			t.Errorf("snapshot = %+v", snap)
		}
		if snap.RecordWrites != 1 || snap.PublishSuccess != 1 {
			t.Errorf("writes=%d published=%d", snap.RecordWrites, snap.PublishSuccess)
		}

		res, err := record.ReadFile(journal)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if len(res.Records) != 1 || res.Records[0].TransferID != "tx-fan" || res.Records[0].MessageID != "77" {
			t.Errorf("journal = %+v", res.Records)
		}

		items, err := mr.List("omcloud:recent")
		if err != nil {
			t.Fatalf("mr.List: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("list length = %d, want 1", len(items))
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(items[0]), &ev); err != nil {
			t.Fatal(err)
		}
		if ev["transfer_id"] != "tx-fan" || ev["timestamp"] != "2026-10-14T07:00:00Z" {
			t.Errorf("event = %v", ev)
		}
	})
}

func TestSession_PublishFailureCounted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	args := []string{"--adapter", "webhook", "--adapter-url", srv.URL, "--adapter-retries", "0"}
	withContext(t, connectionTestFlags(), args, func(c *cli.Context) {
		s, err := newSession(c, nil, log.Nop(), testParams(), types.ProtocolV4)
		if err != nil {
			t.Fatalf("newSession: %v", err)
		}
		defer s.close()

		tr := entry.New(testParams())
		if err := s.start(t.Context(), tr, &syncSubmitter{completion: &transport.Completion{
			Outcome:    transport.OutcomeDone,
			Code:       transport.CodeOK,
			StatusCode: http.StatusNoContent,
		}}); err != nil {
			t.Fatal(err)
		}
		s.finish(tr)

		snap := s.collector.Snapshot()
		if snap.PublishFailure != 1 || snap.PublishSuccess != 0 {
			t.Errorf("publish success=%d failure=%d", snap.PublishSuccess, snap.PublishFailure)
		}
		if snap.ByResult["RETURN_OK"] != 1 {
			t.Error("publish failure must not change the recorded result")
		}
	})
}

func TestSession_ConfigErrorCounted(t *testing.T) {
	withContext(t, connectionTestFlags(), nil, func(c *cli.Context) {
		p := testParams()
		p.AccessToken = ""
		s, err := newSession(c, nil, log.Nop(), p, types.ProtocolV4)
		if err != nil {
			t.Fatal(err)
		}
		defer s.close()

		sub := &syncSubmitter{}
		if err := s.start(t.Context(), entry.New(p), sub); err == nil {
			t.Fatal("expected configuration error")
		}
		if sub.calls != 0 {
			t.Error("nothing must be submitted for a configuration error")
		}
		snap := s.collector.Snapshot()
		if snap.ConfigErrors != 1 || snap.TransfersStarted != 0 {
			t.Errorf("snapshot = %+v", snap)
		}
	})
}

func TestSession_CurlErrorRecordsTransportCode(t *testing.T) {
	withContext(t, connectionTestFlags(), nil, func(c *cli.Context) {
		s, err := newSession(c, nil, log.Nop(), testParams(), types.ProtocolV4)
		if err != nil {
			t.Fatal(err)
		}
		defer s.close()

		tr := entry.New(testParams())
		if err := s.start(t.Context(), tr, &syncSubmitter{completion: &transport.Completion{
			Outcome: transport.OutcomeDone,
			Code:    transport.CodeCouldntConnect,
		}}); err != nil {
			t.Fatal(err)
		}
		s.finish(tr)

		snap := s.collector.Snapshot()
		want := transport.CodeCouldntConnect.String()
		if snap.TransportErrors[want] != 1 {
			t.Errorf("TransportErrors = %v, want %q counted", snap.TransportErrors, want)
		}
	})
}
