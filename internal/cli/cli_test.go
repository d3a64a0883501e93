package cli

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/config"
	"github.com/SensualOdin/ChickenTendies-sub000/internal/notify"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"serve", "watch"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestWatchRequiresIdentity(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"watch", "--group", "g1"})
	root.SetOut(new(nopWriter))
	root.SetErr(new(nopWriter))
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestOriginChecker(t *testing.T) {
	assert.Nil(t, originChecker([]string{"*"}))

	check := originChecker([]string{"https://dine.example"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://dine.example", true},
		{"https://evil.example", false},
		{"", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, check(r), "origin %q", tt.origin)
	}
}

func TestNewNotifier(t *testing.T) {
	cfg := config.Default()
	assert.IsType(t, notify.LogNotifier{}, newNotifier(&cfg))

	cfg.NotifyWebhookURL = "https://hooks.example/dining"
	multi, ok := newNotifier(&cfg).(notify.Multi)
	require.True(t, ok)
	assert.Len(t, multi, 2)
}

func TestOpenStoreMemory(t *testing.T) {
	cfg := config.Default()
	store, err := openStore(&cfg)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}
