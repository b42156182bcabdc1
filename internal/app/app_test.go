package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recibos/internal/broadcast"
	"recibos/internal/platform/config"
	"recibos/internal/platform/logger"
	"recibos/internal/transport"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "padron.csv")
	require.NoError(t, os.WriteFile(registryPath, []byte("Nombre;Teléfono;DNI\nAna Pérez;11 2345-6789;30111222\n"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "recibos", "03-2025"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "recibos", "03-2025", "30111222.pdf"), []byte("%PDF"), 0o600))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	cfg.Documents.RegistryPath = registryPath
	cfg.Documents.Root = filepath.Join(dir, "recibos")
	cfg.Server.PublicBaseURL = "https://recibos.example"
	return cfg
}

func TestBuildInMemory(t *testing.T) {
	cfg := localConfig(t)
	a, err := Build(context.Background(), cfg, logger.Discard(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()

	recorder, ok := a.Sender.(*transport.RecordingSender)
	require.True(t, ok, "unconfigured twilio must fall back to the recording sender")

	router := a.Handler().Router()
	form := url.Values{"From": {"whatsapp:+5491123456789"}, "Body": {"hola"}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "03/2025")

	summary, err := a.Dispatcher.Run(context.Background(), broadcast.Options{Period: "03/2025"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	require.Len(t, recorder.Sent(), 1)
	assert.Contains(t, recorder.Sent()[0].Body, "Ana Pérez")
}

func TestBuildRejectsBadMessagesFile(t *testing.T) {
	cfg := localConfig(t)
	cfg.Documents.MessagesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := Build(context.Background(), cfg, logger.Discard(), nil)
	assert.Error(t, err)
}

func TestRunJanitorStops(t *testing.T) {
	a, err := Build(context.Background(), localConfig(t), logger.Discard(), nil)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.RunJanitor(ctx)
		close(done)
	}()
	cancel()
	<-done
}
