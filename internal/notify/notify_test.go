package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/models"
)

func TestWebhookPostsJSON(t *testing.T) {
	received := make(chan AllDone, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var n AllDone
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		received <- n
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := AllDone{
		GroupID: "g1",
		Code:    "ABC123",
		Members: 3,
		Matches: []models.Restaurant{{ID: "r1", Name: "Taqueria"}},
		At:      time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC),
	}
	require.NoError(t, NewWebhookNotifier(srv.URL, time.Second).AllDone(context.Background(), n))
	assert.Equal(t, n, <-received)
}

func TestWebhookReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, time.Second).AllDone(context.Background(), AllDone{GroupID: "g1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type failing struct{ err error }

func (f failing) AllDone(context.Context, AllDone) error { return f.err }

type counting struct{ calls int }

func (c *counting) AllDone(context.Context, AllDone) error {
	c.calls++
	return nil
}

func TestMultiTriesEveryNotifier(t *testing.T) {
	boom := errors.New("boom")
	c := &counting{}
	err := Multi{failing{boom}, LogNotifier{}, c}.AllDone(context.Background(), AllDone{GroupID: "g1"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, c.calls)

	assert.NoError(t, Multi{LogNotifier{}, c}.AllDone(context.Background(), AllDone{}))
	assert.Equal(t, 2, c.calls)
}
