package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ShutdownOrder(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(http.NotFoundHandler(), Options{Port: 0, ShutdownTimeout: time.Second}, logger)

	var order []string
	s.OnShutdown("worker", func(context.Context) error {
		order = append(order, "worker")
		return nil
	})
	s.OnShutdown("publisher", func(context.Context) error {
		order = append(order, "publisher")
		return errors.New("flush failed")
	})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "publisher: flush failed")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, []string{"publisher", "worker"}, order)
}

func TestAddr(t *testing.T) {
	t.Parallel()

	s := New(http.NotFoundHandler(), Options{Port: 9090}, slog.Default())
	assert.Equal(t, ":9090", s.Addr())
}
