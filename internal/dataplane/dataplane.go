// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dataplane owns the interface attach/detach lifecycle and the
// per-interface capture workers feeding the classifier.
package dataplane

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"grimm.is/wirewall/internal/engine"
	"grimm.is/wirewall/internal/errors"
	"grimm.is/wirewall/internal/inspect"
	"grimm.is/wirewall/internal/logging"
)

// Mode selects how an interface is bound.
type Mode uint8

const (
	// ModeGeneric captures through a raw socket, works everywhere.
	ModeGeneric Mode = iota
	// ModeNative binds at the driver level, requires driver support.
	ModeNative
	// ModeOffload pushes classification to hardware, requires NIC support.
	ModeOffload
)

// ParseMode parses a mode name. "driver" is an alias for native.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(s) {
	case "", "generic":
		return ModeGeneric, true
	case "native", "driver":
		return ModeNative, true
	case "offload":
		return ModeOffload, true
	}
	return 0, false
}

func (m Mode) String() string {
	switch m {
	case ModeNative:
		return "native"
	case ModeOffload:
		return "offload"
	default:
		return "generic"
	}
}

// PacketConn is the capture/injection surface of one bound interface.
type PacketConn interface {
	ReadFrom(b []byte) (int, error)
	WriteTo(b []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Link abstracts the host networking layer so the lifecycle state machine
// is testable without privileges.
type Link interface {
	// Resolve returns the interface index for name.
	Resolve(name string) (int32, error)
	// Supports reports whether the interface can be bound in mode.
	Supports(name string, mode Mode) error
	// Open binds a capture socket to the interface.
	Open(name string) (PacketConn, error)
}

type attachment struct {
	name      string
	ifindex   int32
	mode      Mode
	targetID  uint32
	conn      PacketConn
	cancel    context.CancelFunc
	workerIDs []int
	workers   sync.WaitGroup
}

// Manager drives attach/detach and runs capture workers. Attached
// interfaces double as redirect targets: attaching registers the interface
// in the redirect table, detaching removes it (rules referencing it then
// fail open).
type Manager struct {
	mu sync.Mutex

	link       Link
	cls        *engine.Classifier
	redirects  *engine.RedirectTable
	inspector  *inspect.Registry
	numWorkers int
	log        *logging.Logger

	attached   map[string]*attachment
	nextTarget uint32

	// freeWorkers is the pool of engine worker slots. Each capture
	// goroutine must own a distinct slot, since per-worker token buckets
	// are written without synchronization.
	freeWorkers []int

	// conns maps ifindex to the injection socket. Copy-on-write so workers
	// resolve redirect targets without taking the lifecycle mutex; without
	// this a worker injecting during detach would deadlock against
	// detachLocked waiting for the workers to exit.
	conns atomic.Pointer[connMap]
}

type connMap map[int32]PacketConn

// NewManager creates a dataplane manager running numWorkers capture
// goroutines per attached interface, drawn from the classifier's worker
// slots. Attach fails once the slots are exhausted.
func NewManager(link Link, cls *engine.Classifier, redirects *engine.RedirectTable, numWorkers int) *Manager {
	if numWorkers < 1 {
		numWorkers = 1
	}
	m := &Manager{
		link:       link,
		cls:        cls,
		redirects:  redirects,
		numWorkers: numWorkers,
		log:        logging.WithComponent("dataplane"),
		attached:   map[string]*attachment{},
	}
	for i := 0; i < cls.Workers(); i++ {
		m.freeWorkers = append(m.freeWorkers, i)
	}
	m.conns.Store(&connMap{})
	return m
}

// SetInspector installs the inspection-module registry consulted before
// redirect enforcement. Must be called before the first Attach.
func (m *Manager) SetInspector(r *inspect.Registry) {
	m.inspector = r
}

// Attach binds an interface in the given mode. Attaching an already
// attached interface fails unless force is set, in which case it is
// detached and rebound.
func (m *Manager) Attach(name string, mode Mode, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.attached[name]; ok {
		if !force {
			return errors.Errorf(errors.KindConflict, "%s is already attached", name)
		}
		m.detachLocked(name)
	}

	ifindex, err := m.link.Resolve(name)
	if err != nil {
		return errors.Wrapf(err, errors.KindNotFound, "interface %s not found", name)
	}
	if err := m.link.Supports(name, mode); err != nil {
		return err
	}
	if len(m.freeWorkers) < m.numWorkers {
		return errors.Errorf(errors.KindUnavailable,
			"no free capture workers for %s (%d needed, %d available)",
			name, m.numWorkers, len(m.freeWorkers))
	}

	m.nextTarget++
	target := engine.RedirectTarget{ID: m.nextTarget, IfIndex: ifindex, Name: name}
	if err := m.redirects.Add(target); err != nil {
		return err
	}

	conn, err := m.link.Open(name)
	if err != nil {
		m.redirects.Remove(target.ID)
		return errors.Wrapf(err, errors.KindUnavailable, "failed to bind %s", name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &attachment{
		name:      name,
		ifindex:   ifindex,
		mode:      mode,
		targetID:  target.ID,
		conn:      conn,
		cancel:    cancel,
		workerIDs: m.freeWorkers[:m.numWorkers:m.numWorkers],
	}
	m.freeWorkers = m.freeWorkers[m.numWorkers:]
	m.attached[name] = a
	m.publishConns()

	for _, w := range a.workerIDs {
		a.workers.Add(1)
		go m.captureLoop(ctx, a, w)
	}

	m.log.Info("attached", "interface", name, "ifindex", ifindex, "mode", mode.String())
	return nil
}

// Detach unbinds an interface. Detaching an interface that exists but is
// not attached is a no-op; an unknown interface name is NotFound.
func (m *Manager) Detach(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.attached[name]; !ok {
		if _, err := m.link.Resolve(name); err != nil {
			return errors.Wrapf(err, errors.KindNotFound, "interface %s not found", name)
		}
		return nil
	}
	m.detachLocked(name)
	return nil
}

func (m *Manager) detachLocked(name string) {
	a := m.attached[name]
	delete(m.attached, name)
	m.publishConns()
	m.redirects.Remove(a.targetID)

	a.cancel()
	a.conn.Close()
	a.workers.Wait()
	m.freeWorkers = append(m.freeWorkers, a.workerIDs...)

	m.log.Info("detached", "interface", name)
}

func (m *Manager) publishConns() {
	next := make(connMap, len(m.attached))
	for _, a := range m.attached {
		next[a.ifindex] = a.conn
	}
	m.conns.Store(&next)
}

// Close detaches everything.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.attached {
		m.detachLocked(name)
	}
}

// AttachmentView describes one attached interface.
type AttachmentView struct {
	Interface string `json:"interface"`
	IfIndex   int32  `json:"ifindex"`
	Mode      string `json:"mode"`
	TargetID  uint32 `json:"target_id"`
}

// Status lists the current attachments.
func (m *Manager) Status() []AttachmentView {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AttachmentView, 0, len(m.attached))
	for _, a := range m.attached {
		out = append(out, AttachmentView{
			Interface: a.name,
			IfIndex:   a.ifindex,
			Mode:      a.mode.String(),
			TargetID:  a.targetID,
		})
	}
	return out
}

// captureLoop reads frames until cancellation. The read deadline bounds
// how long a cancelled worker lingers.
func (m *Manager) captureLoop(ctx context.Context, a *attachment, worker int) {
	defer a.workers.Done()

	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		a.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := a.conn.ReadFrom(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			m.log.Warn("capture read failed", "interface", a.name, "err", err)
			return
		}

		res := m.cls.Classify(worker, buf[:n])
		if res.Verdict != engine.VerdictRedirect {
			continue
		}
		if m.inspector != nil && m.inspector.Admit(res.Verdict) != engine.VerdictRedirect {
			continue
		}
		m.inject(res.RedirectIfIndex, buf[:n])
	}
}

// inject writes a frame out of the attachment bound to ifindex. The target
// can disappear between classification and injection; that is not an error.
func (m *Manager) inject(ifindex int32, frame []byte) {
	conn, ok := (*m.conns.Load())[ifindex]
	if !ok {
		return
	}
	if _, err := conn.WriteTo(frame); err != nil {
		m.log.Debug("redirect injection failed", "ifindex", ifindex, "err", err)
	}
}
