// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ctlplane is the unix-socket RPC surface between the CLI and the
// daemon.
package ctlplane

import (
	"net"
	"net/rpc"
	"os"
	"path/filepath"
	"time"

	"grimm.is/wirewall/internal/brand"
	"grimm.is/wirewall/internal/controller"
	"grimm.is/wirewall/internal/dataplane"
	"grimm.is/wirewall/internal/errors"
	"grimm.is/wirewall/internal/inspect"
	"grimm.is/wirewall/internal/logging"
)

// Server exposes the control plane over a unix socket. All mutation flows
// through the controller and dataplane manager, which enforce their own
// serialization; the RPC layer adds no locking of its own.
type Server struct {
	ctrl      *controller.Controller
	mgr       *dataplane.Manager
	inspector *inspect.Registry

	listener  net.Listener
	rpcServer *rpc.Server
	log       *logging.Logger
	startedAt time.Time
}

// NewServer creates a control-plane server.
func NewServer(ctrl *controller.Controller, mgr *dataplane.Manager, inspector *inspect.Registry) *Server {
	return &Server{
		ctrl:      ctrl,
		mgr:       mgr,
		inspector: inspector,
		log:       logging.WithComponent("ctlplane"),
		startedAt: time.Now(),
	}
}

// Start listens on the unix socket and serves connections in the
// background. A stale socket from a dead process is removed first.
func (s *Server) Start(socketPath string) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to create socket directory")
	}
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return errors.Wrapf(err, errors.KindInternal, "failed to listen on %s", socketPath)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		listener.Close()
		return errors.Wrap(err, errors.KindInternal, "failed to set socket permissions")
	}

	s.listener = listener
	s.rpcServer = rpc.NewServer()
	if err := s.rpcServer.RegisterName("Server", s); err != nil {
		listener.Close()
		return errors.Wrap(err, errors.KindInternal, "failed to register RPC service")
	}

	s.log.Info("control plane listening", "socket", socketPath)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.log.Warn("accept failed", "err", err)
				return
			}
			go s.rpcServer.ServeConn(conn)
		}
	}()
	return nil
}

// Stop closes the listener. In-flight calls finish on their own.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
}

// Attach binds an interface to the dataplane.
func (s *Server) Attach(args *AttachArgs, _ *Empty) error {
	mode, ok := dataplane.ParseMode(args.Mode)
	if !ok {
		return errors.Errorf(errors.KindValidation, "invalid attach mode %q", args.Mode)
	}
	return s.mgr.Attach(args.Interface, mode, args.Force)
}

// Detach unbinds an interface.
func (s *Server) Detach(args *DetachArgs, _ *Empty) error {
	return s.mgr.Detach(args.Interface)
}

// AddRule admits a rule.
func (s *Server) AddRule(args *AddRuleArgs, reply *AddRuleReply) error {
	id, err := s.ctrl.AddRule(args.Spec)
	if err != nil {
		return err
	}
	reply.ID = id
	return nil
}

// DeleteRule removes a rule and reports its final statistics.
func (s *Server) DeleteRule(args *DeleteRuleArgs, reply *DeleteRuleReply) error {
	stats, err := s.ctrl.DeleteRule(args.Label)
	if err != nil {
		return err
	}
	reply.Stats = stats
	return nil
}

// ListRules lists rules, optionally with statistics.
func (s *Server) ListRules(args *ListRulesArgs, reply *ListRulesReply) error {
	reply.Rules = s.ctrl.ListRules(controller.ListFilter{
		Label:     args.Label,
		Action:    args.Action,
		WithStats: args.WithStats,
	})
	return nil
}

// GetStats returns the aggregate counters and attachments. Totals are read
// live; the packet rate is computed between periodic harvests and must not
// be recomputed per RPC, or back-to-back calls would report a rate over a
// near-zero window.
func (s *Server) GetStats(_ *Empty, reply *GetStatsReply) error {
	reply.Summary = s.ctrl.Stats()
	reply.Attachments = s.mgr.Status()
	return nil
}

// GetStatus returns daemon identity and uptime.
func (s *Server) GetStatus(_ *Empty, reply *GetStatusReply) error {
	reply.Version = brand.Version
	reply.PID = os.Getpid()
	reply.StartedAt = s.startedAt
	reply.Uptime = time.Since(s.startedAt)
	reply.Rules = len(s.ctrl.ListRules(controller.ListFilter{}))
	reply.Attachments = s.mgr.Status()
	return nil
}

// LoadModule loads a built-in observer inspection module.
func (s *Server) LoadModule(args *LoadModuleArgs, reply *LoadModuleReply) error {
	if args.Name == "" {
		return errors.New(errors.KindValidation, "module name is required")
	}
	reply.ID = s.inspector.Load(inspect.NewObserver(args.Name))
	return nil
}

// UnloadModule removes an inspection module instance.
func (s *Server) UnloadModule(args *UnloadModuleArgs, _ *Empty) error {
	return s.inspector.Unload(args.ID)
}

// ListModules lists loaded inspection modules.
func (s *Server) ListModules(_ *Empty, reply *ListModulesReply) error {
	reply.Modules = s.inspector.List()
	return nil
}
