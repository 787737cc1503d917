// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlplane

import (
	"net/rpc"

	"grimm.is/wirewall/internal/controller"
	"grimm.is/wirewall/internal/engine"
	"grimm.is/wirewall/internal/errors"
	"grimm.is/wirewall/internal/inspect"
)

// Client talks to a running daemon over the control socket.
type Client struct {
	client *rpc.Client
}

// Dial connects to the daemon's unix socket.
func Dial(socketPath string) (*Client, error) {
	c, err := rpc.Dial("unix", socketPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindUnavailable, "cannot reach daemon at %s (is it running?)", socketPath)
	}
	return &Client{client: c}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Attach binds an interface.
func (c *Client) Attach(iface, mode string, force bool) error {
	return c.client.Call("Server.Attach", &AttachArgs{Interface: iface, Mode: mode, Force: force}, &Empty{})
}

// Detach unbinds an interface.
func (c *Client) Detach(iface string) error {
	return c.client.Call("Server.Detach", &DetachArgs{Interface: iface}, &Empty{})
}

// AddRule admits a rule and returns its id.
func (c *Client) AddRule(spec controller.RuleSpec) (uint64, error) {
	var reply AddRuleReply
	if err := c.client.Call("Server.AddRule", &AddRuleArgs{Spec: spec}, &reply); err != nil {
		return 0, err
	}
	return reply.ID, nil
}

// DeleteRule removes a rule and returns its final statistics.
func (c *Client) DeleteRule(label string) (engine.RuleStats, error) {
	var reply DeleteRuleReply
	if err := c.client.Call("Server.DeleteRule", &DeleteRuleArgs{Label: label}, &reply); err != nil {
		return engine.RuleStats{}, err
	}
	return reply.Stats, nil
}

// ListRules lists rules.
func (c *Client) ListRules(label, action string, withStats bool) ([]controller.RuleView, error) {
	var reply ListRulesReply
	args := &ListRulesArgs{Label: label, Action: action, WithStats: withStats}
	if err := c.client.Call("Server.ListRules", args, &reply); err != nil {
		return nil, err
	}
	return reply.Rules, nil
}

// GetStats returns aggregate counters and attachments.
func (c *Client) GetStats() (*GetStatsReply, error) {
	var reply GetStatsReply
	if err := c.client.Call("Server.GetStats", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// GetStatus returns daemon status.
func (c *Client) GetStatus() (*GetStatusReply, error) {
	var reply GetStatusReply
	if err := c.client.Call("Server.GetStatus", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// LoadModule loads an inspection module and returns its instance id.
func (c *Client) LoadModule(name string) (string, error) {
	var reply LoadModuleReply
	if err := c.client.Call("Server.LoadModule", &LoadModuleArgs{Name: name}, &reply); err != nil {
		return "", err
	}
	return reply.ID, nil
}

// UnloadModule removes an inspection module instance.
func (c *Client) UnloadModule(id string) error {
	return c.client.Call("Server.UnloadModule", &UnloadModuleArgs{ID: id}, &Empty{})
}

// ListModules lists loaded inspection modules.
func (c *Client) ListModules() ([]inspect.InstanceView, error) {
	var reply ListModulesReply
	if err := c.client.Call("Server.ListModules", &Empty{}, &reply); err != nil {
		return nil, err
	}
	return reply.Modules, nil
}
