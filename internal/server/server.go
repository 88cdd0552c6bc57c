// Package server is the framed TCP transport: one length-prefixed JSON
// request per frame, one framed response back, requests funneled through the
// transaction processor's intake.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/corebank/ledgerd/internal/domain"
	"github.com/corebank/ledgerd/internal/processor"
	"github.com/corebank/ledgerd/internal/protocol"
	"github.com/corebank/ledgerd/pkg/auth"
)

// Submitter is the processor surface the transport needs.
type Submitter interface {
	Submit(op domain.Operation, done processor.Callback) bool
}

type Server struct {
	addr string
	proc Submitter
	auth *auth.Authenticator

	ln net.Listener
	wg sync.WaitGroup
}

// New builds a TCP server. authenticator may be nil, in which case sessions
// are not required.
func New(addr string, proc Submitter, authenticator *auth.Authenticator) *Server {
	return &Server{
		addr: addr,
		proc: proc,
		auth: authenticator,
	}
}

// Addr returns the bound listen address; valid after Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Start binds the listener and serves until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	zap.L().Info("tcp server listening", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		ln.Close()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		g, ctx := errgroup.WithContext(ctx)
		for {
			conn, err := ln.Accept()
			if err != nil {
				break
			}
			g.Go(func() error {
				s.handleConn(ctx, conn)
				return nil
			})
		}
		g.Wait() //nolint:errcheck
	}()

	return nil
}

// Wait blocks until the accept loop and all connections have finished.
func (s *Server) Wait() {
	s.wg.Wait()
	zap.L().Info("tcp server stopped")
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	go func() {
		// Unblock the pending read on shutdown.
		<-ctx.Done()
		conn.Close()
	}()
	remote := conn.RemoteAddr().String()
	zap.L().Debug("client connected", zap.String("remote", remote))

	for {
		req, err := protocol.ReadRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				zap.L().Debug("connection read failed", zap.String("remote", remote), zap.Error(err))
			}
			return
		}

		resp, stop := s.handleRequest(ctx, req)
		if err := protocol.WriteResponse(conn, resp); err != nil {
			zap.L().Debug("connection write failed", zap.String("remote", remote), zap.Error(err))
			return
		}
		if stop {
			return
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req protocol.Request) (protocol.Response, bool) {
	switch req.Kind {
	case protocol.KindHeartbeat:
		return protocol.Response{Status: protocol.StatusSuccess, Timestamp: req.Timestamp}, false
	case protocol.KindAuthenticate:
		return s.authenticate(req), false
	}

	if s.auth != nil {
		if _, err := s.auth.Validate(req.SessionToken); err != nil {
			return protocol.Error(protocol.StatusUnauthorized, "session required", req.Timestamp), false
		}
	}

	op, err := req.Operation()
	if err != nil {
		return protocol.Error(protocol.StatusInvalidRequest, err.Error(), req.Timestamp), false
	}

	done := make(chan domain.Outcome, 1)
	if !s.proc.Submit(op, func(out domain.Outcome) { done <- out }) {
		return protocol.Error(protocol.StatusError, "server busy", req.Timestamp), false
	}

	select {
	case out := <-done:
		return protocol.FromOutcome(out), false
	case <-ctx.Done():
		return protocol.Error(protocol.StatusError, "shutting down", req.Timestamp), true
	}
}

func (s *Server) authenticate(req protocol.Request) protocol.Response {
	if s.auth == nil {
		return protocol.Error(protocol.StatusInvalidRequest, "authentication not configured", req.Timestamp)
	}
	token, err := s.auth.Authenticate(req.Username, req.Password)
	if err != nil {
		return protocol.Error(protocol.StatusUnauthorized, "bad credentials", req.Timestamp)
	}
	return protocol.Response{Status: protocol.StatusSuccess, Timestamp: req.Timestamp, Token: token}
}
