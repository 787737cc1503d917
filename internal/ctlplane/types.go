// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlplane

import (
	"time"

	"grimm.is/wirewall/internal/controller"
	"grimm.is/wirewall/internal/dataplane"
	"grimm.is/wirewall/internal/engine"
	"grimm.is/wirewall/internal/inspect"
)

// Empty is the placeholder for RPC calls without arguments or results.
type Empty struct{}

type AttachArgs struct {
	Interface string
	Mode      string
	Force     bool
}

type DetachArgs struct {
	Interface string
}

type AddRuleArgs struct {
	Spec controller.RuleSpec
}

type AddRuleReply struct {
	ID uint64
}

type DeleteRuleArgs struct {
	Label string
}

type DeleteRuleReply struct {
	Stats engine.RuleStats
}

type ListRulesArgs struct {
	Label     string
	Action    string
	WithStats bool
}

type ListRulesReply struct {
	Rules []controller.RuleView
}

type GetStatsReply struct {
	Summary     controller.Summary
	Attachments []dataplane.AttachmentView
}

type GetStatusReply struct {
	Version     string
	PID         int
	StartedAt   time.Time
	Uptime      time.Duration
	Rules       int
	Attachments []dataplane.AttachmentView
}

type LoadModuleArgs struct {
	Name string
}

type LoadModuleReply struct {
	ID string
}

type UnloadModuleArgs struct {
	ID string
}

type ListModulesReply struct {
	Modules []inspect.InstanceView
}
