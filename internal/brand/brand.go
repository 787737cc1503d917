// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package brand provides centralized branding constants so the product
// can be renamed without touching the rest of the tree.
package brand

const (
	Name       = "Wirewall"
	LowerName  = "wirewall"
	BinaryName = "wirewall"

	Description = "Wire-speed packet classification and policy enforcement"

	ConfigFileName = "wirewall.hcl"

	DefaultConfigDir = "/etc/wirewall"
	DefaultRunDir    = "/run/wirewall"

	// SocketName is the control plane RPC socket, created under the run dir.
	SocketName = "ctl.sock"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"
