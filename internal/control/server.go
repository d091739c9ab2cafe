// Package control serves a harness to peer processes on one local socket.
//
// A cmux listener splits incoming connections three ways:
//
//	HTTP/2   gRPC service tkharness.v1.Harness (JSON codec)
//	HTTP/1   JSON routes on a grpc-gateway ServeMux
//	other    newline-delimited JSON frames (package wire)
//
// All three decode into message.Request and answer with message.Response.
package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"

	"go.klb.dev/tkharness/internal/message"
	"go.klb.dev/tkharness/internal/wire"
)

const (
	matchTimeout = 5 * time.Second
	lineIdle     = 5 * time.Minute
)

// Server is the control surface of one scenario process.
type Server struct {
	handler Handler
	grpc    *grpc.Server
	http    *http.Server

	mu     sync.Mutex
	ln     net.Listener
	closed atomic.Bool
}

// NewServer returns a server answering with h.
func NewServer(h Handler) (*Server, error) {
	mux, err := newGatewayMux(h)
	if err != nil {
		return nil, err
	}
	return &Server{
		handler: h,
		grpc:    newGRPCServer(h),
		http:    &http.Server{Handler: mux, ReadHeaderTimeout: matchTimeout},
	}, nil
}

// Serve accepts connections on ln until Close. It returns nil after Close.
func (s *Server) Serve(ln net.Listener) error {
	m := cmux.New(ln)
	m.SetReadTimeout(matchTimeout)
	grpcL := m.Match(cmux.HTTP2())
	httpL := m.Match(cmux.HTTP1Fast())
	lineL := m.Match(cmux.Any())

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	if s.closed.Load() {
		_ = ln.Close()
	}

	go func() { _ = s.grpc.Serve(grpcL) }()
	go func() { _ = s.http.Serve(httpL) }()
	go s.serveLines(lineL)

	slog.Info("control socket listening", "addr", ln.Addr().String())
	err := m.Serve()
	if s.closed.Load() {
		return nil
	}
	return err
}

// Close stops accepting and drops open connections.
func (s *Server) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.grpc.Stop()
	_ = s.http.Close()
}

func (s *Server) serveLines(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.handleLineConn(conn)
	}
}

// handleLineConn answers frames one at a time until the peer hangs up.
func (s *Server) handleLineConn(conn net.Conn) {
	wc := wire.New(conn)
	defer wc.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		wc.SetReadDeadline(lineIdle)
		req, err := wc.ReadRequest()
		if errors.Is(err, message.ErrMalformed) {
			resp := &message.Response{Error: err.Error(), Code: CodeBadRequest}
			if err := wc.WriteMsg(resp); err != nil {
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closed.Load() {
				slog.Debug("control line read failed", "err", err)
			}
			return
		}
		if err := wc.WriteMsg(s.handler.Handle(ctx, req)); err != nil {
			slog.Debug("control line write failed", "err", err)
			return
		}
	}
}
