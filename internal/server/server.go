// Package server wires internal/protocol's line codec to internal/engine
// over a TCP listener: one goroutine per connection. engine.Engine already
// serializes every call through its own mutex (§5), so this layer adds
// none of its own.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bitpystore/bitpystore/internal/engine"
	"github.com/bitpystore/bitpystore/internal/protocol"
)

// Logger is the minimal logging surface Server needs. *log.Logger
// satisfies it; so does anything with the same Printf method.
type Logger interface {
	Printf(format string, args ...any)
}

// Server accepts TCP connections and dispatches the §6.3 line protocol
// against a single engine.Engine.
type Server struct {
	listenAddr string
	eng        *engine.Engine
	logger     Logger

	wg       sync.WaitGroup
	listener net.Listener

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New constructs a Server bound to eng. It does not start listening;
// call Run for that.
func New(listenAddr string, eng *engine.Engine, logger Logger) *Server {
	return &Server{
		listenAddr: listenAddr,
		eng:        eng,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
}

// Run listens on s.listenAddr and serves connections until a client sends
// SHUTDOWN or the listener is closed by Close. It returns nil on a clean
// shutdown and a non-nil error on a fatal listener failure.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %q: %w", s.listenAddr, err)
	}

	s.listener = ln
	s.logf("listening on %s", s.listenAddr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
				s.wg.Wait()

				return nil
			default:
				return fmt.Errorf("server: accept: %w", err)
			}
		}

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops Run from accepting further connections. In-flight
// connections are allowed to finish.
func (s *Server) Close() error {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })

	if s.listener == nil {
		return nil
	}

	if err := s.listener.Close(); err != nil {
		return fmt.Errorf("server: close listener: %w", err)
	}

	return nil
}

func (s *Server) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}

	s.logger.Printf(format, args...)
}

// handleConn serves one client connection until EXIT, SHUTDOWN, or
// disconnect. It never panics out to the caller: a panic inside dispatch
// is logged and the connection is closed, matching the scoped-acquisition
// discipline engine.OpenScoped uses for the engine itself.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	defer func() {
		if r := recover(); r != nil {
			s.logf("panic serving %s: %v", conn.RemoteAddr(), r)
		}
	}()

	s.logf("connection opened: %s", conn.RemoteAddr())
	defer s.logf("connection closed: %s", conn.RemoteAddr())

	writer := bufio.NewWriter(conn)

	if _, err := writer.WriteString(protocol.Greeting + "\n"); err != nil {
		return
	}

	if err := writer.Flush(); err != nil {
		return
	}

	scanner := bufio.NewScanner(conn)

	for scanner.Scan() {
		line := scanner.Text()

		shouldClose, shouldShutdown := s.dispatch(line, writer)
		if err := writer.Flush(); err != nil {
			return
		}

		if shouldShutdown {
			go s.shutdownAfterResponse()
			return
		}

		if shouldClose {
			return
		}
	}
}

// shutdownAfterResponse is run in its own goroutine so the SHUTDOWN
// response has already been flushed to the requesting client before the
// listener stops accepting new connections.
func (s *Server) shutdownAfterResponse() {
	time.Sleep(10 * time.Millisecond)
	_ = s.Close()
}

// dispatch parses and executes one line, writing exactly one response
// (GET's VALUE/NOT_FOUND, STATS's multi-line block, or a single status
// line) to w. It reports whether the connection should close and whether
// the whole server should shut down.
func (s *Server) dispatch(line string, w io.Writer) (shouldClose, shouldShutdown bool) {
	req, err := protocol.Parse(line)
	if err != nil {
		fmt.Fprintln(w, protocol.FormatErr(err.Error()))
		return false, false
	}

	switch req.Command {
	case protocol.CmdPut:
		return s.handlePut(req, w)
	case protocol.CmdGet:
		return s.handleGet(req, w)
	case protocol.CmdDel:
		return s.handleDel(req, w)
	case protocol.CmdTTL:
		return s.handleTTL(req, w)
	case protocol.CmdStats:
		return s.handleStats(w)
	case protocol.CmdCompact:
		return s.handleCompact(w)
	case protocol.CmdShutdown:
		fmt.Fprintln(w, protocol.FormatOK())
		return false, true
	case protocol.CmdExit:
		fmt.Fprintln(w, protocol.FormatOK())
		return true, false
	default:
		fmt.Fprintln(w, protocol.FormatErr("unknown command"))
		return false, false
	}
}

func (s *Server) handlePut(req protocol.Request, w io.Writer) (bool, bool) {
	err := s.eng.Put(req.Key, []byte(req.Value), req.TTL)

	if err != nil {
		fmt.Fprintln(w, protocol.FormatErr(errorKind(err)))
		return false, false
	}

	fmt.Fprintln(w, protocol.FormatOK())

	return false, false
}

func (s *Server) handleGet(req protocol.Request, w io.Writer) (bool, bool) {
	value, ok, err := s.eng.Get(req.Key)

	switch {
	case err != nil:
		fmt.Fprintln(w, protocol.FormatErr(errorKind(err)))
	case !ok:
		fmt.Fprintln(w, protocol.FormatNotFound())
	default:
		fmt.Fprintln(w, protocol.FormatValue(string(value)))
	}

	return false, false
}

func (s *Server) handleDel(req protocol.Request, w io.Writer) (bool, bool) {
	wasLive, err := s.eng.Delete(req.Key)

	switch {
	case err != nil:
		fmt.Fprintln(w, protocol.FormatErr(errorKind(err)))
	case !wasLive:
		fmt.Fprintln(w, protocol.FormatNotFound())
	default:
		fmt.Fprintln(w, protocol.FormatDeleted())
	}

	return false, false
}

func (s *Server) handleTTL(req protocol.Request, w io.Writer) (bool, bool) {
	var seconds int64
	if req.TTL != nil {
		seconds = *req.TTL
	}

	err := s.eng.Ttl(req.Key, seconds)

	switch {
	case errors.Is(err, engine.ErrNotFound):
		fmt.Fprintln(w, protocol.FormatNotFound())
	case err != nil:
		fmt.Fprintln(w, protocol.FormatErr(errorKind(err)))
	default:
		fmt.Fprintln(w, protocol.FormatOK())
	}

	return false, false
}

func (s *Server) handleStats(w io.Writer) (bool, bool) {
	stats, err := s.eng.Stats()

	if err != nil {
		fmt.Fprintln(w, protocol.FormatErr(errorKind(err)))
		return false, false
	}

	for _, line := range protocol.FormatStats(protocol.Stats{
		KeysInIndex:        stats.KeysInIndex,
		KeysInCache:        stats.KeysInCache,
		PutCount:           stats.PutCount,
		DeleteCount:        stats.DeleteCount,
		FileSizeBytes:      stats.FileSizeBytes,
		LastCompactionTime: stats.LastCompactionTime,
	}) {
		fmt.Fprintln(w, line)
	}

	return false, false
}

func (s *Server) handleCompact(w io.Writer) (bool, bool) {
	err := s.eng.Compact()

	if err != nil {
		fmt.Fprintln(w, protocol.FormatErr(errorKind(err)))
		return false, false
	}

	fmt.Fprintln(w, protocol.FormatOK())

	return false, false
}

// errorKind maps an engine error to the short reason string the ERR
// response carries, per §7's "all other errors to ERR <kind>".
func errorKind(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotSerializable):
		return "not_serializable"
	case errors.Is(err, engine.ErrInvalidTTL):
		return "invalid_ttl"
	case errors.Is(err, engine.ErrDataCorruption):
		return "data_corruption"
	case errors.Is(err, engine.ErrIO):
		return "io_error"
	case errors.Is(err, engine.ErrClosed):
		return "closed"
	default:
		return "internal"
	}
}
