package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/astrozzc/manageiq-automation-engine/internal/adapters/yamltree"
	"github.com/astrozzc/manageiq-automation-engine/internal/application"
	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
)

type Config struct {
	// ImportRoot is the directory that import source paths are resolved in.
	ImportRoot string
	Logger     *slog.Logger
}

// Server answers JSON-RPC 2.0 requests on a unix socket. The socket is only
// accessible to its owner, so imports run as trusted operator calls.
type Server struct {
	service  *application.ImportService
	root     string
	log      *slog.Logger
	listener net.Listener
	path     string
	// ctx is cancelled by Close, aborting in-flight calls.
	ctx    context.Context
	cancel context.CancelFunc
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

type rpcError struct {
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Kind    domain.ErrorKind `json:"kind,omitempty"`
}

// ImportParams are the params of the import.run method.
type ImportParams struct {
	Path   string `json:"path"`
	Domain string `json:"domain"`
	application.ImportOptions
}

func Start(path string, service *application.ImportService, cfg Config) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rpc socket path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{service: service, root: cfg.ImportRoot, log: cfg.Logger, listener: ln, path: path, ctx: ctx, cancel: cancel}
	if s.log == nil {
		s.log = slog.Default()
	}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	s.cancel()
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}, ID: nil})
			return
		}

		resp := s.dispatch(s.ctx, req)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32600, Message: "invalid request"}, ID: req.ID}
	}

	switch req.Method {
	case "domains.list":
		list, err := s.service.ListDomains(ctx)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: list, ID: req.ID}
	case "import.run":
		var p ImportParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		result, err := s.runImport(ctx, p)
		if err != nil {
			s.log.Warn("rpc import failed", "path", p.Path, "domain", p.Domain, "error", err)
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: result, ID: req.ID}
	default:
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32601, Message: "method not found"}, ID: req.ID}
	}
}

func (s *Server) runImport(ctx context.Context, p ImportParams) (application.ImportResult, error) {
	if strings.TrimSpace(p.Domain) == "" {
		p.Domain = domain.AllDomains
	}
	src, err := yamltree.OpenWithin(s.root, p.Path)
	if err != nil {
		return application.ImportResult{}, err
	}
	defer func() { _ = src.Close() }()

	opts := p.ImportOptions
	opts.Trusted = true
	return s.service.Import(ctx, src, p.Domain, opts)
}

func decodeParams(raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func invalidParams(id any) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32602, Message: "invalid params"}, ID: id}
}

// appError reports an import failure with a code derived from its kind.
func appError(id any, err error) response {
	kind := domain.KindOf(err)
	code := 50000
	switch kind {
	case domain.KindInvalidInput:
		code = 40000
	case domain.KindPolicyDenied:
		code = 40300
	case domain.KindConflict:
		code = 40900
	case domain.KindUnresolvedReference:
		code = 42200
	}
	return response{JSONRPC: "2.0", Error: &rpcError{Code: code, Message: err.Error(), Kind: kind}, ID: id}
}
