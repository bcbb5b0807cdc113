package rpcjson

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/astrozzc/manageiq-automation-engine/internal/adapters/db/sqlite"
	"github.com/astrozzc/manageiq-automation-engine/internal/application"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const domainYAML = `object_type: domain
version: 1.0
object:
  attributes:
    name: Customer
`

const namespaceYAML = `object_type: namespace
version: 1.0
object:
  attributes:
    name: System
`

type rpcReply struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func startServer(t *testing.T) string {
	t.Helper()
	return startTestServer(t).path
}

func startTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	root := t.TempDir()
	for name, body := range map[string]string{
		"export/Customer/__domain__.yaml":           domainYAML,
		"export/Customer/System/__namespace__.yaml": namespaceYAML,
	} {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "rpc_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	_, err = sqlite.RunMigrations(ctx, db)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := sqlite.NewRepository(db)
	svc := application.NewImportService(repo, repo, repo, application.Config{Logger: log})

	socket := filepath.Join(t.TempDir(), "miqae.sock")
	srv, err := Start(socket, svc, Config{ImportRoot: root, Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func call(t *testing.T, socket, method string, params any) rpcReply {
	t.Helper()
	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	req := map[string]any{"jsonrpc": "2.0", "method": method, "id": 1}
	if params != nil {
		req["params"] = params
	}
	require.NoError(t, json.NewEncoder(conn).Encode(req))

	var reply rpcReply
	require.NoError(t, json.NewDecoder(conn).Decode(&reply))
	return reply
}

func TestImportRunOverSocket(t *testing.T) {
	socket := startServer(t)

	reply := call(t, socket, "import.run", map[string]any{"path": "export", "domain": "Customer"})
	require.Nil(t, reply.Error)
	var result application.ImportResult
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	assert.Equal(t, application.Counter{Added: 1}, result.Stats.Domain)
	assert.Equal(t, application.Counter{Added: 1}, result.Stats.Namespace)

	reply = call(t, socket, "domains.list", nil)
	require.Nil(t, reply.Error)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(reply.Result, &list))
	assert.Len(t, list, 1)
}

func TestSocketErrors(t *testing.T) {
	socket := startServer(t)

	reply := call(t, socket, "nope", nil)
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32601, reply.Error.Code)

	reply = call(t, socket, "import.run", nil)
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32602, reply.Error.Code)

	reply = call(t, socket, "import.run", map[string]any{"path": "missing"})
	require.NotNil(t, reply.Error)
	assert.Equal(t, 40000, reply.Error.Code)
	assert.Equal(t, "invalid_input", string(reply.Error.Kind))
}

func TestStartRequiresPath(t *testing.T) {
	_, err := Start(" ", nil, Config{})
	assert.Error(t, err)
}

func TestCloseCancelsCalls(t *testing.T) {
	srv := startTestServer(t)
	require.NoError(t, srv.Close())
	assert.ErrorIs(t, srv.ctx.Err(), context.Canceled)

	resp := srv.dispatch(srv.ctx, request{JSONRPC: "2.0", Method: "domains.list", ID: 1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, 50000, resp.Error.Code)
}
