// Package api serves the key-value store of a raft replica over HTTP.
//
//	POST   /?key=k               create k
//	PUT    /?key=k&value=v       update k
//	PUT    /?key=k&cmp=c&value=v set k to v if it holds c
//	DELETE /?key=k               delete k
//	GET    /?key=k[&commit_index=i]
//
// A redirect (302) names the replica to ask next in its body, together
// with the commit index to pass along for reads.
package api

import (
	"context"
	"dsbuild/raft"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

const DefaultTimeout = 5 * time.Second

var ErrBadRequest = errors.New("bad request")

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTimeout bounds the wait for the answer of the replica.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

type Server struct {
	app      *fiber.App
	register *RequestRegister
	timeout  time.Duration
	logger   *zap.Logger
}

func NewServer(register *RequestRegister, opts ...Option) *Server {
	s := &Server{
		register: register,
		timeout:  DefaultTimeout,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New()
	s.app.Get("/", s.handle)
	s.app.Post("/", s.handle)
	s.app.Put("/", s.handle)
	s.app.Delete("/", s.handle)
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening for users", zap.Stringer("addr", ln.Addr()))
	return s.app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handle(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	params := c.Queries()
	var (
		id  raft.CommandID
		ch  <-chan raft.LocalResponse
		err error
	)
	if c.Method() == fiber.MethodGet {
		key, minCommitID, perr := readRequest(params)
		if perr != nil {
			return reply(c, fiber.StatusBadRequest, perr.Error())
		}
		id, ch, err = s.register.RegisterRead(ctx, key, minCommitID)
	} else {
		ct, perr := commandType(c.Method(), params)
		if perr != nil {
			return reply(c, fiber.StatusBadRequest, perr.Error())
		}
		id, ch, err = s.register.RegisterCommand(ctx, ct)
	}
	if err != nil {
		s.logger.Warn("request not registered", zap.Error(err))
		return reply(c, fiber.StatusServiceUnavailable, "service unavailable")
	}

	select {
	case resp := <-ch:
		s.logger.Debug("request answered", zap.Stringer("response", resp))
		return s.respond(c, resp)
	case <-ctx.Done():
		s.register.Forget(id)
		s.logger.Debug("request timed out", zap.Stringer("id", id))
		return reply(c, fiber.StatusServiceUnavailable, "service unavailable")
	}
}

func (s *Server) respond(c fiber.Ctx, resp raft.LocalResponse) error {
	switch resp.Type {
	case raft.ReadValue:
		value, err := json.Marshal(resp.Value)
		if err != nil {
			return err
		}
		return reply(c, fiber.StatusAccepted, string(value))
	case raft.RedirectedTo:
		addr, err := s.register.AddrOf(resp.To)
		if err != nil {
			return reply(c, fiber.StatusInternalServerError, err.Error())
		}
		commitIndex := "null"
		if resp.CommitIndex != nil {
			commitIndex = strconv.FormatInt(*resp.CommitIndex, 10)
		}
		return reply(c, fiber.StatusFound, fmt.Sprintf("to=%q, commit_index=%s", addr, commitIndex))
	case raft.CommandDone:
		return reply(c, resp.Reply.Status, resp.Reply.Info)
	default:
		return reply(c, fiber.StatusServiceUnavailable, "service unavailable")
	}
}

func reply(c fiber.Ctx, status int, body string) error {
	return c.Status(status).SendString(body + "\n")
}

func param(params map[string]string, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", fmt.Errorf("%w: query param %q is absent", ErrBadRequest, name)
	}
	return v, nil
}

func commandType(method string, params map[string]string) (raft.CommandType, error) {
	key, err := param(params, "key")
	if err != nil {
		return raft.CommandType{}, err
	}
	switch method {
	case fiber.MethodPost:
		return raft.Create(key), nil
	case fiber.MethodDelete:
		return raft.Delete(key), nil
	case fiber.MethodPut:
		value, err := param(params, "value")
		if err != nil {
			return raft.CommandType{}, err
		}
		if cmp, ok := params["cmp"]; ok {
			return raft.Cas(key, cmp, value), nil
		}
		return raft.Update(key, value), nil
	default:
		return raft.CommandType{}, fmt.Errorf("%w: unsupported method %s", ErrBadRequest, method)
	}
}

func readRequest(params map[string]string) (string, *int64, error) {
	key, err := param(params, "key")
	if err != nil {
		return "", nil, err
	}
	s, ok := params["commit_index"]
	if !ok {
		return key, nil, nil
	}
	commitIndex, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return "", nil, fmt.Errorf("%w: commit_index: %v", ErrBadRequest, err)
	}
	return key, &commitIndex, nil
}
