// Package socket implements the local record-store endpoint: a unix-domain
// socket listener speaking the newline-delimited JSON protocol.
//
// One goroutine serves each connection. A malformed frame gets a
// bad_request response and the connection stays open, read or write errors
// close it. Shard and registry locks are scoped strictly around the storage
// call inside dispatch, never around socket I/O, so a hung or vanished peer
// cannot hold the store.
package socket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/userdb/internal/common"
	"github.com/dmitrijs2005/userdb/internal/logging"
	"github.com/dmitrijs2005/userdb/internal/protocol"
	"github.com/dmitrijs2005/userdb/internal/server/query"
	"github.com/dmitrijs2005/userdb/internal/server/registry"
)

type Server struct {
	path     string
	logger   logging.Logger
	registry *registry.Registry
	engine   *query.Engine

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewServer(path string, l logging.Logger, reg *registry.Registry, eng *query.Engine) *Server {
	return &Server{
		path:     path,
		logger:   l.With("module", "socket_server"),
		registry: reg,
		engine:   eng,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Run listens on the socket path until ctx is cancelled. A stale socket
// file from a previous run is removed before binding.
func (s *Server) Run(ctx context.Context) error {

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping socket server...")
		listener.Close()
		s.closeConns()
	}()

	s.logger.Info(ctx, "Socket server listening", "socket", s.path)

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error(ctx, "Accept failed", "error", err.Error())
			continue
		}

		s.track(conn)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}

	wg.Wait()
	os.Remove(s.path)
	return nil
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	log := s.logger.With("conn", uuid.NewString())
	log.Info(ctx, "Client connected")

	defer func() {
		s.untrack(conn)
		conn.Close()
		log.Info(ctx, "Connection closed")
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := protocol.ReadLine(reader)
		if err != nil {
			// EOF or a dropped peer, nothing held open on our side
			return
		}

		var req protocol.Request
		var resp protocol.Response
		if err := json.Unmarshal(line, &req); err != nil {
			resp = protocol.ErrorResponse(fmt.Errorf("%w: %v", common.ErrBadRequest, err))
		} else {
			resp = s.dispatch(ctx, log, req)
		}

		if err := protocol.WriteFrame(conn, resp); err != nil {
			log.Warn(ctx, "Write failed", "error", err.Error())
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, log logging.Logger, req protocol.Request) protocol.Response {
	switch req.Op {

	case protocol.OpCreate:
		if req.Record == nil {
			return protocol.ErrorResponse(fmt.Errorf("%w: missing record", common.ErrValidation))
		}
		ref, err := s.registry.Create(*req.Record)
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		log.Info(ctx, "Record created", "ref", ref.String())
		return protocol.Response{Status: protocol.StatusOK, Ref: ref.String()}

	case protocol.OpGet:
		rec, err := s.registry.Get(req.Ref)
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		fields, err := rec.Project(req.Fields)
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		return protocol.Response{Status: protocol.StatusOK, Ref: req.Ref, Record: fields}

	case protocol.OpUpdate:
		if len(req.Patch) == 0 {
			return protocol.ErrorResponse(fmt.Errorf("%w: no fields to update", common.ErrValidation))
		}
		rec, err := s.registry.Update(req.Ref, req.Patch)
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		fields, err := rec.Project(nil)
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		log.Info(ctx, "Record updated", "ref", req.Ref)
		return protocol.Response{Status: protocol.StatusOK, Ref: req.Ref, Record: fields}

	case protocol.OpDelete:
		if err := s.registry.Delete(req.Ref); err != nil {
			return protocol.ErrorResponse(err)
		}
		log.Info(ctx, "Record deleted", "ref", req.Ref)
		return protocol.Response{Status: protocol.StatusOK, Ref: req.Ref}

	case protocol.OpFind:
		matches, err := s.engine.Find(req.Field, req.Value)
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		results := make([]protocol.Result, 0, len(matches))
		for _, m := range matches {
			fields, err := m.Rec.Project(req.Fields)
			if err != nil {
				return protocol.ErrorResponse(err)
			}
			results = append(results, protocol.Result{Ref: m.Ref.String(), Record: fields})
		}
		return protocol.Response{Status: protocol.StatusOK, Results: results}

	default:
		return protocol.ErrorResponse(fmt.Errorf("%w: unknown op %q", common.ErrBadRequest, req.Op))
	}
}
