package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCommand(t *testing.T) {
	ws := newWorkspace(t)
	ws.submit(t, "put.yaml", putPablo)
	_, err := ws.run(t, "submit", writeFile(t, ws.dir, "stale.yaml", staleMatch))
	require.Error(t, err)
	ws.submit(t, "v1.yaml", putPabloV1)

	t.Run("all records", func(t *testing.T) {
		out, err := ws.run(t, "log")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "tx 1 "))
		assert.True(t, strings.HasSuffix(lines[0], " committed"))
		assert.True(t, strings.HasPrefix(lines[1], "tx 2 "))
		assert.True(t, strings.HasSuffix(lines[1], " aborted"))
		assert.True(t, strings.HasSuffix(lines[2], " committed"))
	})

	t.Run("operations skip aborted records", func(t *testing.T) {
		out, err := ws.run(t, "log", "--ops", "--format", "json")
		require.NoError(t, err)
		var resp struct {
			Data []RecordView `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Len(t, resp.Data, 2)
		assert.Equal(t, int64(1), resp.Data[0].TxID)
		assert.Equal(t, int64(3), resp.Data[1].TxID)

		require.Len(t, resp.Data[0].Operations, 1)
		put := resp.Data[0].Operations[0]
		assert.Equal(t, "put", put.Op)
		assert.Equal(t, "pablo", put.ID)
		assert.NotEmpty(t, put.DocHash)
		assert.False(t, put.Evicted)
		assert.Equal(t, "Pablo", put.Attrs["name"])
		assert.Equal(t, "2000-01-01T01:00:00Z", put.ValidFrom)
		assert.Empty(t, put.ValidTo)

		require.Len(t, resp.Data[1].Operations, 2)
		match := resp.Data[1].Operations[0]
		assert.Equal(t, "match", match.Op)
		assert.Equal(t, put.DocHash, match.DocHash)
		assert.Equal(t, "2000-01-01T02:00:00Z", match.ValidTime)
	})

	t.Run("after", func(t *testing.T) {
		out, err := ws.run(t, "log", "--after", "2")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 1)
		assert.True(t, strings.HasPrefix(lines[0], "tx 3 "))
	})

	t.Run("limit", func(t *testing.T) {
		out, err := ws.run(t, "log", "--limit", "1")
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1)
	})

	t.Run("negative after", func(t *testing.T) {
		_, err := ws.run(t, "log", "--after=-1")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestLogShowsEvictedBodies(t *testing.T) {
	ws := newWorkspace(t)
	ws.submit(t, "put.yaml", putPablo)
	ws.submit(t, "evict.json", evictPablo)

	out, err := ws.run(t, "log", "--ops")
	require.NoError(t, err)
	assert.Contains(t, out, "put pablo <evicted> from 2000-01-01T01:00:00Z")
	assert.Contains(t, out, "evict pablo")
}

func TestLogEmpty(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "log", "--format", "json")
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []any{}, resp.Data)
}
