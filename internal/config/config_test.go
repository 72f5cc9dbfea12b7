package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atu-ide/bizbridge/internal/client"
)

func TestLoadConfigFromBytes_YAML(t *testing.T) {
	yamlConfig := `
transport:
  kind: websocket
  url: ws://127.0.0.1:9000/bridge
  connectAttempts: 5
  dialTimeout: 2s

session:
  projectId: p-1
  username: alice
  requestTimeout: 30s

locale:
  language: zh-CN

menus:
  - id: compile
    label: Compile
    location: ["5_atu_compile"]
    children:
      - id: compile.all
        label: Compile All
        location: ["5_atu_compile"]
        request:
          request_id: compile_all
          service_name: compiler
`
	cfg, err := LoadConfigFromBytes([]byte(yamlConfig), "yaml")
	if err != nil {
		t.Fatalf("LoadConfigFromBytes() error: %v", err)
	}

	if cfg.Transport.Kind != client.KindWebsocket {
		t.Errorf("Transport.Kind = %q, want %q", cfg.Transport.Kind, client.KindWebsocket)
	}
	if cfg.Session.ProjectID != "p-1" {
		t.Errorf("Session.ProjectID = %q, want %q", cfg.Session.ProjectID, "p-1")
	}
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Errorf("RequestTimeout() = %v, want 30s", got)
	}
	if len(cfg.Menus) != 1 || len(cfg.Menus[0].Children) != 1 {
		t.Fatalf("menus not parsed: %+v", cfg.Menus)
	}
	if svc := cfg.Menus[0].Children[0].Request.ServiceName; svc != "compiler" {
		t.Errorf("menu request service = %q, want %q", svc, "compiler")
	}

	opts := cfg.ClientOptions()
	if opts.URL != "ws://127.0.0.1:9000/bridge" || opts.Attempts != 5 || opts.Timeout != 2*time.Second {
		t.Errorf("ClientOptions() = %+v", opts)
	}
}

func TestLoadConfigFromBytes_JSON(t *testing.T) {
	jsonConfig := `{
  "session": {"projectId": "p-2", "solutionId": "s-1"},
  "metrics": {"addr": ":9100"}
}`
	cfg, err := LoadConfigFromBytes([]byte(jsonConfig), "json")
	if err != nil {
		t.Fatalf("LoadConfigFromBytes() error: %v", err)
	}

	// unset sections keep their defaults
	if cfg.Transport.Kind != client.KindUnix {
		t.Errorf("Transport.Kind = %q, want %q", cfg.Transport.Kind, client.KindUnix)
	}
	if cfg.Transport.Socket != client.DefaultSocketPath {
		t.Errorf("Transport.Socket = %q, want %q", cfg.Transport.Socket, client.DefaultSocketPath)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}
	if cfg.RequestTimeout() != 0 {
		t.Errorf("RequestTimeout() = %v, want 0", cfg.RequestTimeout())
	}
}

func TestLoadConfigFromBytes_UnsupportedFormat(t *testing.T) {
	if _, err := LoadConfigFromBytes([]byte("x = 1"), "toml"); err == nil {
		t.Error("expected error for toml format")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{"unknown transport", "transport: {kind: carrier-pigeon}", "unknown kind"},
		{"websocket without url", "transport: {kind: websocket}", "needs a url"},
		{"websocket bad scheme", "transport: {kind: websocket, url: 'http://x'}", "scheme"},
		{"unix with url", "transport: {kind: unix, url: 'ws://x'}", "only used by the websocket"},
		{"bad dial timeout", "transport: {dialTimeout: soon}", "dialTimeout"},
		{"negative attempts", "transport: {connectAttempts: -1}", "connectAttempts"},
		{"bad request timeout", "session: {requestTimeout: 5}", "requestTimeout"},
		{"negative request timeout", "session: {requestTimeout: -1s}", "negative"},
		{"bad language", "locale: {language: '!!'}", "language"},
		{"watch without bundles", "locale: {watch: true}", "bundles"},
		{"duplicate menu id", "menus: [{id: a}, {id: a}]", "duplicate menu id"},
		{"unknown output format", "output: {compiler: xml}", "unknown format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFromBytes([]byte(tt.config), "yaml")
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yml")
	if err := os.WriteFile(path, []byte("session: {projectId: p-3}\nlocale: {bundles: ~/i18n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Session.ProjectID != "p-3" {
		t.Errorf("Session.ProjectID = %q, want %q", cfg.Session.ProjectID, "p-3")
	}
	if strings.HasPrefix(cfg.Locale.Bundles, "~") {
		t.Errorf("Locale.Bundles = %q, want home expanded", cfg.Locale.Bundles)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBodyCarriesSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session = SessionConfig{ProjectID: "p", SolutionID: "s", Username: "u"}

	body := Body(cfg, map[string]int{"n": 1})
	if body.ProjectID != "p" || body.SolutionID != "s" || body.Username != "u" {
		t.Errorf("Body() = %+v", body)
	}
	if body.Data["n"] != 1 {
		t.Errorf("Body().Data = %v", body.Data)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.ProjectID = "p"

	for _, format := range []string{"yaml", "json"} {
		data, err := cfg.Marshal(format)
		if err != nil {
			t.Fatalf("Marshal(%s) error: %v", format, err)
		}
		back, err := LoadConfigFromBytes(data, format)
		if err != nil {
			t.Fatalf("LoadConfigFromBytes(%s) error: %v", format, err)
		}
		if back.Session.ProjectID != "p" || back.Transport.Socket != cfg.Transport.Socket {
			t.Errorf("%s round trip lost fields: %+v", format, back)
		}
	}
}
