// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package cmd holds the CLI verbs. Each Run function maps one subcommand
// to a control-plane call and renders the result for a terminal.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"grimm.is/wirewall/internal/brand"
	"grimm.is/wirewall/internal/controller"
	"grimm.is/wirewall/internal/ctlplane"
)

// DefaultSocket is where client verbs look for the daemon unless -socket
// says otherwise.
func DefaultSocket() string {
	return filepath.Join(brand.DefaultRunDir, brand.SocketName)
}

func dial(socket string) (*ctlplane.Client, error) {
	if socket == "" {
		socket = DefaultSocket()
	}
	return ctlplane.Dial(socket)
}

// RunAttach binds an interface.
func RunAttach(socket, iface, mode string, force bool) error {
	client, err := dial(socket)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Attach(iface, mode, force); err != nil {
		return err
	}
	fmt.Printf("Attached %s\n", iface)
	return nil
}

// RunDetach unbinds an interface.
func RunDetach(socket, iface string) error {
	client, err := dial(socket)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Detach(iface); err != nil {
		return err
	}
	fmt.Printf("Detached %s\n", iface)
	return nil
}

// RunAdd admits a rule.
func RunAdd(socket string, spec controller.RuleSpec) error {
	client, err := dial(socket)
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := client.AddRule(spec)
	if err != nil {
		return err
	}
	fmt.Printf("Rule %q added (id %d)\n", spec.Label, id)
	return nil
}

// RunDelete removes a rule and prints its final counters.
func RunDelete(socket, label string) error {
	client, err := dial(socket)
	if err != nil {
		return err
	}
	defer client.Close()

	stats, err := client.DeleteRule(label)
	if err != nil {
		return err
	}
	fmt.Printf("Rule %q deleted (%d packets, %d bytes)\n", label, stats.Packets, stats.Bytes)
	return nil
}

// RunList prints the rule table.
func RunList(socket, label, action string, withStats, asJSON bool) error {
	client, err := dial(socket)
	if err != nil {
		return err
	}
	defer client.Close()

	rules, err := client.ListRules(label, action, withStats)
	if err != nil {
		return err
	}

	if asJSON {
		return printJSON(rules)
	}
	if len(rules) == 0 {
		fmt.Println("No rules.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if withStats {
		fmt.Fprintln(w, "ID\tLABEL\tPRIO\tACTION\tPROTO\tSRC\tDST\tPACKETS\tBYTES")
		for _, r := range rules {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\t%d\t%d\n",
				r.ID, r.Label, r.Priority, r.Action, r.Protocol,
				orAny(r.SrcIP), orAny(r.DstIP), r.Stats.Packets, r.Stats.Bytes)
		}
	} else {
		fmt.Fprintln(w, "ID\tLABEL\tPRIO\tACTION\tPROTO\tSRC\tDST")
		for _, r := range rules {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
				r.ID, r.Label, r.Priority, r.Action, r.Protocol,
				orAny(r.SrcIP), orAny(r.DstIP))
		}
	}
	return w.Flush()
}

// RunStats prints aggregate counters and attachments.
func RunStats(socket string, asJSON bool) error {
	client, err := dial(socket)
	if err != nil {
		return err
	}
	defer client.Close()

	stats, err := client.GetStats()
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(stats)
	}

	s := stats.Summary
	fmt.Printf("Rules:            %d\n", s.Rules)
	fmt.Printf("Packets:          %d\n", s.TotalPackets)
	fmt.Printf("Bytes:            %d\n", s.TotalBytes)
	fmt.Printf("Packets/sec:      %.1f\n", s.PacketsPerSec)
	fmt.Printf("Malformed:        %d\n", s.Faults.Malformed)
	fmt.Printf("Unresolved redir: %d\n", s.Faults.UnresolvedRedirect)
	if len(stats.Attachments) > 0 {
		fmt.Println("\nAttachments:")
		for _, a := range stats.Attachments {
			fmt.Printf("  %s (ifindex %d, %s)\n", a.Interface, a.IfIndex, a.Mode)
		}
	}
	return nil
}

// RunStatus prints daemon identity and uptime.
func RunStatus(socket string, asJSON bool) error {
	client, err := dial(socket)
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.GetStatus()
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(status)
	}

	fmt.Printf("%s %s\n", brand.Name, status.Version)
	fmt.Printf("PID:         %d\n", status.PID)
	fmt.Printf("Uptime:      %s\n", status.Uptime.Round(time.Second))
	fmt.Printf("Rules:       %d\n", status.Rules)
	fmt.Printf("Attachments: %d\n", len(status.Attachments))
	return nil
}

// RunModuleLoad loads an inspection module.
func RunModuleLoad(socket, name string) error {
	client, err := dial(socket)
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := client.LoadModule(name)
	if err != nil {
		return err
	}
	fmt.Printf("Module %q loaded (instance %s)\n", name, id)
	return nil
}

// RunModuleUnload unloads an inspection module instance.
func RunModuleUnload(socket, id string) error {
	client, err := dial(socket)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.UnloadModule(id); err != nil {
		return err
	}
	fmt.Println("Module unloaded")
	return nil
}

// RunModuleList prints loaded inspection modules.
func RunModuleList(socket string) error {
	client, err := dial(socket)
	if err != nil {
		return err
	}
	defer client.Close()

	mods, err := client.ListModules()
	if err != nil {
		return err
	}
	if len(mods) == 0 {
		fmt.Println("No modules loaded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLOADED\tADMITTED\tVETOED")
	for _, m := range mods {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			m.ID, m.Name, m.LoadedAt.Format(time.RFC3339), m.Admitted, m.Vetoed)
	}
	return w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orAny(s string) string {
	if s == "" {
		return "any"
	}
	return s
}
