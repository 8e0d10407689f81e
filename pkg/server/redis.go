// Package server is a minimal Redis-wire-protocol front end over a
// github.com/Joe-noh/concache/pkg/cache.Cache[string, []byte]. It is ordinary outer packaging
// around the cache facade, not part of the cache's own concurrency core. Grounded on the teacher
// repo's pkg/port/redis.go (command dispatch, redcon wiring) and pkg/port/backend.go. SET takes
// exactly a key and a value: existence and TTL options (NX/XX/EX/PX) are not parsed and are
// rejected as a wrong number of arguments. A per-key TTL is set with EXPIRE, which maps onto
// concache's Item/TTLSpec vocabulary.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/redcon"

	"github.com/Joe-noh/concache/pkg/cache"
)

// ErrMissingAddress is returned by Run when given an empty listen address.
var ErrMissingAddress = errors.New("server: listen address must not be empty")

// Server dispatches RESP commands against a single byte-string cache.
type Server struct {
	cache *cache.Cache[string, []byte]
}

// New wraps c for Redis-protocol access.
func New(c *cache.Cache[string, []byte]) *Server {
	return &Server{cache: c}
}

// Run starts listening on address and blocks until ctx is done or the listener fails.
func (s *Server) Run(ctx context.Context, address string) error {
	if address == "" {
		return ErrMissingAddress
	}

	srv := redcon.NewServerNetwork("tcp", address,
		func(conn redcon.Conn, cmd redcon.Command) {
			slog.Debug("Handling command.", "cmd", string(cmd.Raw))
			s.handle(conn, cmd)
		},
		func(conn redcon.Conn) bool {
			slog.Info("Accepting connection.", "addr", conn.NetConn().RemoteAddr().String())
			return true
		},
		func(conn redcon.Conn, err error) {
			if err != nil {
				slog.Debug("Connection closed.", "addr", conn.NetConn().RemoteAddr().String(), "error", err)
			}
		})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting Redis-protocol server.", "address", address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Server context cancelled, shutting down.", "error", ctx.Err())
		return srv.Close()
	case err := <-errCh:
		return fmt.Errorf("redis-protocol server stopped unexpectedly: %w", err)
	}
}

func (s *Server) handle(conn redcon.Conn, cmd redcon.Command) {
	if len(cmd.Args) == 0 {
		conn.WriteError("ERR empty command")
		return
	}
	name := strings.ToUpper(string(cmd.Args[0]))
	args := cmd.Args[1:]
	ctx := context.Background()

	switch name {
	case "PING":
		conn.WriteString("PONG")

	case "QUIT":
		conn.WriteString("OK")
		_ = conn.Close()

	case "GET":
		if len(args) != 1 {
			conn.WriteError("ERR wrong number of arguments for 'get' command")
			return
		}
		v, ok := s.cache.Get(ctx, string(args[0]))
		if !ok {
			conn.WriteNull()
			return
		}
		conn.WriteBulk(v)

	case "SET":
		if len(args) != 2 {
			conn.WriteError("ERR wrong number of arguments for 'set' command")
			return
		}
		value := append([]byte(nil), args[1]...) // redcon reuses cmd.Args' backing array.
		if err := s.cache.Put(ctx, string(args[0]), value); err != nil {
			conn.WriteError("ERR " + err.Error())
			return
		}
		conn.WriteString("OK")

	case "DEL":
		if len(args) < 1 {
			conn.WriteError("ERR wrong number of arguments for 'del' command")
			return
		}
		deleted := 0
		for _, raw := range args {
			key := string(raw)
			if _, ok := s.cache.Get(ctx, key); ok {
				deleted++
			}
			if err := s.cache.Delete(ctx, key); err != nil {
				slog.Error("Failed to delete key.", "key", key, "error", err)
			}
		}
		conn.WriteInt(deleted)

	case "EXPIRE":
		s.handleExpire(conn, args)

	case "TTL", "PERSIST":
		// Neither is expressible through Cache: it offers no operation to query a key's remaining
		// ticks or to cancel its expiry (wheel.Wheel's Remove is not reachable from Cache), so these
		// are left unsupported rather than approximated.
		conn.WriteError(fmt.Sprintf("ERR '%s' is not supported", strings.ToLower(name)))

	default:
		conn.WriteError(fmt.Sprintf("ERR unknown command '%s'", name))
	}
}

func (s *Server) handleExpire(conn redcon.Conn, args [][]byte) {
	if len(args) != 2 {
		conn.WriteError("ERR wrong number of arguments for 'expire' command")
		return
	}
	seconds, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil || seconds < 0 {
		conn.WriteError("ERR invalid expire time")
		return
	}

	key := string(args[0])
	steps := s.cache.TTLStepsForDuration(time.Duration(seconds) * time.Second)
	updateErr := s.cache.UpdateExistingItem(context.Background(), key, func(current []byte) (cache.Item[[]byte], error) {
		return cache.Item[[]byte]{Value: current, TTL: cache.StepsTTL(steps)}, nil
	})
	if errors.Is(updateErr, cache.ErrNotExisting) {
		conn.WriteInt(0)
		return
	}
	if updateErr != nil {
		conn.WriteError("ERR " + updateErr.Error())
		return
	}
	conn.WriteInt(1)
}
