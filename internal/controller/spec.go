// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package controller

import (
	"encoding/binary"
	"net"
	"strings"

	"grimm.is/wirewall/internal/engine"
	"grimm.is/wirewall/internal/errors"
)

// RuleSpec is the external, string-typed form of a rule as issued by the
// CLI, the control socket, or a config file. The controller validates and
// compiles it into an engine.Rule before any table mutation.
type RuleSpec struct {
	Label    string `json:"label" hcl:"label,label"`
	Action   string `json:"action" hcl:"action"`
	Priority uint32 `json:"priority,omitempty" hcl:"priority,optional"`
	Protocol string `json:"protocol,omitempty" hcl:"protocol,optional"`

	SrcIP string `json:"src_ip,omitempty" hcl:"src_ip,optional"`
	DstIP string `json:"dst_ip,omitempty" hcl:"dst_ip,optional"`

	// Range filters. A range left entirely at zero is unset and matches
	// everything; a match on exactly port 0 or length 0 is inexpressible.
	SrcPortMin uint16 `json:"src_port_min,omitempty" hcl:"src_port_min,optional"`
	SrcPortMax uint16 `json:"src_port_max,omitempty" hcl:"src_port_max,optional"`
	DstPortMin uint16 `json:"dst_port_min,omitempty" hcl:"dst_port_min,optional"`
	DstPortMax uint16 `json:"dst_port_max,omitempty" hcl:"dst_port_max,optional"`
	PktLenMin  uint16 `json:"pkt_len_min,omitempty" hcl:"pkt_len_min,optional"`
	PktLenMax  uint16 `json:"pkt_len_max,omitempty" hcl:"pkt_len_max,optional"`

	TCPFlags   string `json:"tcp_flags,omitempty" hcl:"tcp_flags,optional"`
	RedirectIf string `json:"redirect_if,omitempty" hcl:"redirect_if,optional"`
	RateLimit  uint32 `json:"rate_limit,omitempty" hcl:"rate_limit,optional"`
	Expire     uint32 `json:"expire,omitempty" hcl:"expire,optional"`
}

// compile validates every field of the spec and builds the engine rule.
// The redirect target is resolved against the table here so a bad
// redirect_if is rejected before admission.
func compile(spec RuleSpec, redirects *engine.RedirectTable) (*engine.Rule, error) {
	label := strings.TrimSpace(spec.Label)
	if label == "" {
		return nil, errors.New(errors.KindValidation, "rule label is required")
	}
	if len(label) > engine.MaxLabelLen {
		return nil, errors.Errorf(errors.KindValidation, "label %q exceeds %d bytes", label, engine.MaxLabelLen)
	}

	action, ok := engine.ParseAction(spec.Action)
	if !ok {
		return nil, errors.Errorf(errors.KindValidation, "invalid action %q", spec.Action)
	}
	proto, ok := engine.ParseProtocol(spec.Protocol)
	if !ok {
		return nil, errors.Errorf(errors.KindValidation, "invalid protocol %q", spec.Protocol)
	}

	r := &engine.Rule{
		Label:    label,
		Priority: spec.Priority,
		Action:   action,
		Proto:    proto,

		SrcPortMin: spec.SrcPortMin,
		SrcPortMax: spec.SrcPortMax,
		DstPortMin: spec.DstPortMin,
		DstPortMax: spec.DstPortMax,
		LenMin:     spec.PktLenMin,
		LenMax:     spec.PktLenMax,

		RateLimit: spec.RateLimit,
		Expire:    spec.Expire,
	}

	if spec.SrcIP != "" {
		addr, plen, err := parsePrefix(spec.SrcIP)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindValidation, "invalid src_ip %q", spec.SrcIP)
		}
		r.SrcAddr, r.SrcLen = addr, plen
	}
	if spec.DstIP != "" {
		addr, plen, err := parsePrefix(spec.DstIP)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindValidation, "invalid dst_ip %q", spec.DstIP)
		}
		r.DstAddr, r.DstLen, r.HasDst = addr, plen, true
	}

	// A bare min is shorthand for a single-value range.
	if r.SrcPortMax == 0 && r.SrcPortMin > 0 {
		r.SrcPortMax = r.SrcPortMin
	}
	if r.DstPortMax == 0 && r.DstPortMin > 0 {
		r.DstPortMax = r.DstPortMin
	}
	if r.LenMax == 0 && r.LenMin > 0 {
		r.LenMax = r.LenMin
	}
	if r.SrcPortMin > r.SrcPortMax {
		return nil, errors.Errorf(errors.KindValidation, "src_port range %d-%d is inverted", r.SrcPortMin, r.SrcPortMax)
	}
	if r.DstPortMin > r.DstPortMax {
		return nil, errors.Errorf(errors.KindValidation, "dst_port range %d-%d is inverted", r.DstPortMin, r.DstPortMax)
	}
	if r.LenMin > r.LenMax {
		return nil, errors.Errorf(errors.KindValidation, "pkt_len range %d-%d is inverted", r.LenMin, r.LenMax)
	}

	if spec.TCPFlags != "" {
		if proto != engine.ProtoTCP {
			return nil, errors.Errorf(errors.KindValidation, "tcp_flags requires protocol tcp, got %q", proto)
		}
		flags, err := engine.ParseTCPFlags(spec.TCPFlags)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindValidation, "invalid tcp_flags")
		}
		r.TCPFlags = flags
	}

	if action == engine.ActionRedirect {
		if spec.RedirectIf == "" {
			return nil, errors.New(errors.KindValidation, "redirect_if is required for action redirect")
		}
		target, ok := redirects.ResolveName(spec.RedirectIf)
		if !ok {
			return nil, errors.Errorf(errors.KindValidation, "redirect_if %q is not attached", spec.RedirectIf)
		}
		r.RedirectTarget = target.ID
	} else if spec.RedirectIf != "" {
		return nil, errors.Errorf(errors.KindValidation, "redirect_if is only valid with action redirect")
	}

	r.Normalize()
	return r, nil
}

// parsePrefix parses "a.b.c.d/len" or a bare address (treated as /32).
func parsePrefix(s string) (uint32, uint8, error) {
	if !strings.Contains(s, "/") {
		ip := net.ParseIP(s)
		if ip == nil || ip.To4() == nil {
			return 0, 0, errors.New(errors.KindValidation, "not an IPv4 address")
		}
		return binary.BigEndian.Uint32(ip.To4()), 32, nil
	}

	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return 0, 0, err
	}
	if ipnet.IP.To4() == nil {
		return 0, 0, errors.New(errors.KindValidation, "not an IPv4 prefix")
	}
	plen, _ := ipnet.Mask.Size()
	return binary.BigEndian.Uint32(ipnet.IP.To4()), uint8(plen), nil
}
