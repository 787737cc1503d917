// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package dataplane

import (
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/mdlayher/packet"
	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"grimm.is/wirewall/internal/errors"
)

// SystemLink binds real interfaces through AF_PACKET sockets.
type SystemLink struct {
	handle *ethtool.Ethtool
}

// NewSystemLink opens the ethtool handle used for capability probing.
func NewSystemLink() (*SystemLink, error) {
	h, err := ethtool.NewEthtool()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to open ethtool handle")
	}
	return &SystemLink{handle: h}, nil
}

// Close releases the ethtool handle.
func (l *SystemLink) Close() {
	l.handle.Close()
}

// Resolve returns the interface index for name.
func (l *SystemLink) Resolve(name string) (int32, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return 0, err
	}
	return int32(link.Attrs().Index), nil
}

// Virtual drivers have no real driver-level receive path.
var virtualDrivers = map[string]bool{
	"veth": true, "bridge": true, "dummy": true, "tun": true,
	"virtio_net": true, "vmxnet3": true, "xen_netfront": true,
}

// Supports probes whether the interface can serve the requested mode.
// Generic always works; native needs a physical driver; offload needs the
// NIC's hw-tc-offload feature.
func (l *SystemLink) Supports(name string, mode Mode) error {
	switch mode {
	case ModeGeneric:
		return nil
	case ModeNative:
		driver := driverName(l.handle, name)
		if driver == "" || virtualDrivers[driver] {
			return errors.Errorf(errors.KindUnavailable, "%s (driver %q) does not support native mode", name, driver)
		}
		return nil
	case ModeOffload:
		features, err := l.handle.Features(name)
		if err != nil {
			return errors.Wrapf(err, errors.KindUnavailable, "cannot probe offload support on %s", name)
		}
		if !features["hw-tc-offload"] {
			return errors.Errorf(errors.KindUnavailable, "%s does not support hardware offload", name)
		}
		return nil
	}
	return errors.Errorf(errors.KindValidation, "unknown attach mode %d", mode)
}

func driverName(h *ethtool.Ethtool, name string) string {
	if driver, err := h.DriverName(name); err == nil && driver != "" {
		return driver
	}
	// Some virtual devices reject the ethtool ioctl; fall back to sysfs.
	target, err := os.Readlink(filepath.Join("/sys/class/net", name, "device/driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

// Open binds a raw IPv4 AF_PACKET socket to the interface.
func (l *SystemLink) Open(name string) (PacketConn, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	conn, err := packet.Listen(iface, packet.Raw, unix.ETH_P_IP, nil)
	if err != nil {
		return nil, err
	}
	return &afPacketConn{conn: conn}, nil
}

type afPacketConn struct {
	conn *packet.Conn
}

func (c *afPacketConn) ReadFrom(b []byte) (int, error) {
	n, _, err := c.conn.ReadFrom(b)
	return n, err
}

// WriteTo injects a complete Ethernet frame; the socket address carries the
// destination MAC from the frame itself.
func (c *afPacketConn) WriteTo(b []byte) (int, error) {
	if len(b) < 6 {
		return 0, errors.New(errors.KindValidation, "frame too short to inject")
	}
	return c.conn.WriteTo(b, &packet.Addr{HardwareAddr: net.HardwareAddr(b[0:6])})
}

func (c *afPacketConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *afPacketConn) Close() error {
	return c.conn.Close()
}
