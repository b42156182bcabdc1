package workflow

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "recibos/pkg/domain-errors"
)

func TestLoadMessagesOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("view_prompt: \"Hola {nombre}, ¿ves el recibo de {periodo}?\"\nbusy: \"  \"\n"), 0o600))

	msgs, err := LoadMessages(path)
	require.NoError(t, err)
	assert.Equal(t, "Hola Ana, ¿ves el recibo de 03/2025?", Render(msgs.ViewPrompt, "03/2025", "Ana"))
	assert.Equal(t, DefaultMessages().Busy, msgs.Busy)
	assert.Equal(t, DefaultMessages().Signed, msgs.Signed)
}

func TestLoadMessagesErrors(t *testing.T) {
	_, err := LoadMessages(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("view_prompt: [unclosed"), 0o600))
	_, err = LoadMessages(path)
	assert.Error(t, err)

	msgs, err := LoadMessages("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMessages(), msgs)
}

func TestInputMatching(t *testing.T) {
	cases := []struct {
		in          string
		affirmative bool
		negative    bool
		menu        bool
	}{
		{in: "Sí", affirmative: true},
		{in: "SI, visualizar", affirmative: true},
		{in: "si quiero verlo", affirmative: true},
		{in: "¡Dale!", affirmative: true},
		{in: "No", negative: true},
		{in: "ahora no", negative: true},
		{in: "Menú", menu: true},
		{in: "HISTORIAL", menu: true},
		{in: "sino"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			folded := normalize(tc.in)
			assert.Equal(t, tc.affirmative, isAffirmative(folded))
			assert.Equal(t, tc.negative, isNegative(folded))
			assert.Equal(t, tc.menu, isMenuKeyword(folded))
		})
	}

	n, ok := optionNumber(normalize("Opción 2"))
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	_, ok = optionNumber(normalize("0"))
	assert.False(t, ok)
}

func TestButtonDetection(t *testing.T) {
	assert.True(t, InboundEvent{ButtonPayload: ViewButtonPayload}.IsButton())
	assert.True(t, InboundEvent{ButtonText: "Visualizar"}.IsButton())
	assert.False(t, InboundEvent{Body: "visualizar"}.IsButton())
	assert.True(t, InboundEvent{Body: "  "}.IsEmpty())
}

func TestTurnLocksSerializePerPhone(t *testing.T) {
	locks := &turnLocks{timeout: time.Second}
	var active, peak int32
	done := make(chan struct{})
	for range 4 {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = locks.Run(context.Background(), "1123456789", func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	for range 4 {
		<-done
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestTurnLocksTimeout(t *testing.T) {
	locks := &turnLocks{timeout: 20 * time.Millisecond}
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = locks.Run(context.Background(), "1123456789", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	err := locks.Run(context.Background(), "1123456789", func(context.Context) error { return nil })
	close(release)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}
