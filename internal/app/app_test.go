package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/atu-ide/bizbridge/internal/bridge"
	"github.com/atu-ide/bizbridge/internal/client"
	"github.com/atu-ide/bizbridge/internal/config"
	"github.com/atu-ide/bizbridge/internal/models"
	"github.com/atu-ide/bizbridge/internal/server"
)

var echoHead = models.RequestHead{RequestID: "echo", ServiceName: "compiler"}

func newBackendConfig(t *testing.T) (*server.Backend, *config.Config) {
	t.Helper()
	b := server.New()
	b.Handle(echoHead, server.Echo)
	b.Handle(models.RequestHead{RequestID: "fail", ServiceName: "compiler"}, func(context.Context, *server.Request) models.RawResponse {
		return models.RawResponse{Error: &models.ResponseError{
			ErrorID:    7,
			ErrorLevel: models.SeriousError,
			ErrorDesc:  models.ErrorDesc{DescKey: true, Desc: "compile.failed", Params: []string{"main.st"}},
		}}
	})

	srv := httptest.NewServer(b)
	t.Cleanup(func() {
		b.Close()
		srv.Close()
	})

	cfg := config.DefaultConfig()
	cfg.Transport = config.TransportConfig{
		Kind:            client.KindWebsocket,
		URL:             "ws" + strings.TrimPrefix(srv.URL, "http"),
		ConnectAttempts: 1,
		DialTimeout:     "2s",
	}
	cfg.Session = config.SessionConfig{ProjectID: "p-1", RequestTimeout: "2s"}
	cfg.Output = map[string]string{"compiler": config.FormatJSON}
	return b, cfg
}

func TestNewWiresBridgeEndToEnd(t *testing.T) {
	_, cfg := newBackendConfig(t)

	var notes bytes.Buffer
	s, err := New(context.Background(), cfg, Options{Out: &notes, NoColor: true})
	require.NoError(t, err)
	defer s.Close()

	resp, err := bridge.Fetch[string](context.Background(), s.Bridge, echoHead, config.Body(cfg, "ping"), s.RequestOptions(false))
	require.NoError(t, err)
	assert.True(t, models.IsSuccess(resp))
	assert.Equal(t, "ping", resp.Data)

	raw, err := s.Bridge.FetchRaw(context.Background(), echoHead, config.Body(cfg, json.RawMessage(`"pong"`)), nil)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, s.Render(&out, echoHead, raw))
	assert.JSONEq(t, `{"error":{"error_id":0,"error_level":1,"error_desc":{"desc_key":false,"desc":"","params":[]}},"data":"pong"}`, out.String())
}

func TestBusinessErrorReachesConsole(t *testing.T) {
	_, cfg := newBackendConfig(t)

	var notes bytes.Buffer
	s, err := New(context.Background(), cfg, Options{Out: &notes, NoColor: true})
	require.NoError(t, err)
	defer s.Close()

	s.Localizer.Add(language.English, map[string]string{"compile.failed": "cannot compile {0}"})

	opts := s.RequestOptions(false)
	resp, err := s.Bridge.FetchRaw(context.Background(), models.RequestHead{RequestID: "fail", ServiceName: "compiler"}, config.Body(cfg, json.RawMessage(`{}`)), opts)
	require.NoError(t, err)
	require.True(t, opts.ShouldReport(resp.Error))

	s.Bridge.ShowErrorMessage(resp.Error)
	assert.Equal(t, "✗ Error: cannot compile main.st\n", notes.String())
}

func TestRendererFallsBackToTable(t *testing.T) {
	_, cfg := newBackendConfig(t)
	s, err := New(context.Background(), cfg, Options{Out: io.Discard})
	require.NoError(t, err)
	defer s.Close()

	var out bytes.Buffer
	head := models.RequestHead{RequestID: "x", ServiceName: "unconfigured"}
	require.NoError(t, s.Render(&out, head, &models.RawResponse{Data: json.RawMessage(`1`)}))
	assert.Contains(t, out.String(), "unconfigured")
}

func TestMetricsHandlerExposesBridgeMetrics(t *testing.T) {
	_, cfg := newBackendConfig(t)
	s, err := New(context.Background(), cfg, Options{Out: io.Discard})
	require.NoError(t, err)
	defer s.Close()

	_, err = bridge.Fetch[string](context.Background(), s.Bridge, echoHead, config.Body(cfg, "m"), nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, `bizbridge_fetch_total{outcome="ok",service="compiler"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestNewFailsWhenDialFails(t *testing.T) {
	cfg := config.DefaultConfig()
	boom := errors.New("no backend")

	_, err := New(context.Background(), cfg, Options{
		Out: io.Discard,
		Dial: func(context.Context, client.Options) (client.Channel, error) {
			return nil, boom
		},
	})
	assert.ErrorIs(t, err, boom)
}

func TestNewRejectsMissingBundles(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Locale.Bundles = t.TempDir() + "/missing"

	_, err := New(context.Background(), cfg, Options{Out: io.Discard})
	assert.Error(t, err)
}

func TestCloseIsIdempotentAndStopsWatch(t *testing.T) {
	_, cfg := newBackendConfig(t)
	cfg.Locale.Bundles = t.TempDir()
	cfg.Locale.Watch = true

	s, err := New(context.Background(), cfg, Options{Out: io.Discard})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	select {
	case <-s.Bridge.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
}
