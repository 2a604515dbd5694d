package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tempodb/internal/model"
	"github.com/roach88/tempodb/internal/notify"
	"github.com/roach88/tempodb/internal/store"
)

func TestRunStopsOnContextCancel(t *testing.T) {
	ws := newWorkspace(t)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"run", "--db", ws.db, "--metrics-addr", "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() {
		done <- cmd.ExecuteContext(ctx)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after context cancellation")
	}
	assert.Contains(t, out.String(), "Engine started.")
}

func TestRunResolvesPendingSubmissions(t *testing.T) {
	ws := newWorkspace(t)

	// Reserve without a running engine, as if the submitter crashed.
	ops, err := model.ValidateOperations([]model.Operation{model.Put{
		Document:  model.MustDocument("pablo", map[string]any{"name": "Pablo", "version": 0}),
		ValidFrom: time.Date(2000, 1, 1, 1, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)
	st, err := store.Open(ws.db)
	require.NoError(t, err)
	_, err = st.Reserve(context.Background(), ops, time.Now())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"run", "--db", ws.db})
	require.NoError(t, cmd.ExecuteContext(ctx))

	out, err := ws.run(t, "entity", "pablo", "--valid-time", "2000-01-01T02:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, `"version":0`)
}

func TestRunInvalidMetricsAddr(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.run(t, "run", "--metrics-addr", "not-an-address")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to serve metrics")
}

func TestServeMetrics(t *testing.T) {
	addr, stop, err := serveMetrics("127.0.0.1:0")
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tempodb_indexed_tx_id")
	assert.Contains(t, string(body), "tempodb_listeners_registered")
}

func TestLogIndexed(t *testing.T) {
	ev := notify.Event{
		Committed: true,
		Instant:   model.TransactionInstant{TxID: 1, TxTime: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	assert.NoError(t, logIndexed(context.Background(), ev))
}
