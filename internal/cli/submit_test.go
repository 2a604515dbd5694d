package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const putPablo = `operations:
  - op: put
    id: pablo
    attrs: {name: Pablo, version: 0}
    valid_from: "2000-01-01T01:00:00Z"
`

const putPabloV1 = `operations:
  - op: match
    id: pablo
    expected: {name: Pablo, version: 0}
    valid_time: "2000-01-01T02:00:00Z"
  - op: put
    id: pablo
    attrs: {name: Pablo, version: 1}
    valid_from: "2000-01-01T03:00:00Z"
`

// staleMatch expects a version pablo never had.
const staleMatch = `operations:
  - {op: match, id: pablo, expected: {name: Pablo, version: 9}, valid_time: "2000-01-01T02:00:00Z"}
  - {op: put, id: pablo, attrs: {name: Pablo, version: 10}}
`

const malformedPut = `operations:
  - {op: put, id: pablo, attrs: {version: 3}, valid_from: "2000-01-01T03:00:00Z", valid_to: "2000-01-01T01:00:00Z"}
`

const evictPablo = `{"operations": [{"op": "evict", "id": "pablo"}]}`

// workspace is a temp dir holding one database.
type workspace struct {
	dir string
	db  string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	return &workspace{dir: dir, db: filepath.Join(dir, "tempodb.db")}
}

// run executes a command against the workspace database.
func (w *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, append(args, "--db", w.db)...)
}

// submit writes content to name and submits it, requiring success.
func (w *workspace) submit(t *testing.T, name, content string) string {
	t.Helper()
	out, err := w.run(t, "submit", writeFile(t, w.dir, name, content))
	require.NoError(t, err, out)
	return out
}

func TestSubmitCommits(t *testing.T) {
	ws := newWorkspace(t)

	out := ws.submit(t, "put.yaml", putPablo)
	assert.Contains(t, out, "tx 1 committed")
	assert.Contains(t, out, "put.yaml")

	out = ws.submit(t, "v1.yaml", putPabloV1)
	assert.Contains(t, out, "tx 2 committed")
}

func TestSubmitMultipleFilesInOrder(t *testing.T) {
	ws := newWorkspace(t)
	a := writeFile(t, ws.dir, "a.yaml", putPablo)
	b := writeFile(t, ws.dir, "b.yaml", putPabloV1)

	out, err := ws.run(t, "submit", a, b)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "tx 1 committed")
	assert.Contains(t, lines[0], "a.yaml")
	assert.Contains(t, lines[1], "tx 2 committed")
	assert.Contains(t, lines[1], "b.yaml")
}

func TestSubmitAborted(t *testing.T) {
	ws := newWorkspace(t)
	ws.submit(t, "put.yaml", putPablo)

	out, err := ws.run(t, "submit", writeFile(t, ws.dir, "stale.yaml", staleMatch))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 transaction(s) aborted")
	assert.Contains(t, out, "tx 2 aborted")
}

func TestSubmitMalformed(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.run(t, "submit", writeFile(t, ws.dir, "bad.yaml", malformedPut))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "MALFORMED_OPERATION", ErrorCode(err))

	// Malformed input consumes no transaction id.
	out := ws.submit(t, "put.yaml", putPablo)
	assert.Contains(t, out, "tx 1 committed")
}

func TestSubmitLoadErrorSubmitsNothing(t *testing.T) {
	ws := newWorkspace(t)
	good := writeFile(t, ws.dir, "good.yaml", putPablo)

	_, err := ws.run(t, "submit", good, filepath.Join(ws.dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load transaction")

	out, err := ws.run(t, "log")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))
}

func TestSubmitNoWait(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "submit", "--no-wait", writeFile(t, ws.dir, "put.yaml", putPablo))
	require.NoError(t, err)
	assert.Contains(t, out, "tx 1 pending")

	// Closing the session drains the queue, so the next process sees it.
	out, err = ws.run(t, "log")
	require.NoError(t, err)
	assert.Contains(t, out, "tx 1")
	assert.Contains(t, out, "committed")
}

func TestSubmitJSON(t *testing.T) {
	ws := newWorkspace(t)

	out, err := ws.run(t, "submit", "--format", "json", writeFile(t, ws.dir, "put.json",
		`{"operations":[{"op":"put","id":"pablo","attrs":{"name":"Pablo","version":0}}]}`))
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   []SubmitResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, int64(1), resp.Data[0].TxID)
	assert.Equal(t, "committed", resp.Data[0].Outcome)
	assert.NotEmpty(t, resp.Data[0].TxTime)
}

func TestSubmitCUE(t *testing.T) {
	ws := newWorkspace(t)

	out := ws.submit(t, "put.cue", `
operations: [{
	op: "put"
	id: "pablo"
	attrs: {name: "Pablo", version: 0}
	valid_from: "2000-01-01T01:00:00Z"
}]
`)
	assert.Contains(t, out, "tx 1 committed")
}
