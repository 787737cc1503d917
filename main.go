// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command wirewall is the packet classification daemon and its control CLI.
package main

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/wirewall/cmd"
	"grimm.is/wirewall/internal/brand"
	"grimm.is/wirewall/internal/controller"
)

func usage() {
	fmt.Fprintf(os.Stderr, `%s - wire-speed packet classification and policy enforcement

Usage: %s <command> [flags]

Daemon:
  start         Start the daemon in the background
  run           Run the daemon in the foreground
  stop          Stop the running daemon
  status        Show daemon status

Interfaces:
  attach        Bind an interface to the dataplane
  detach        Unbind an interface

Rules:
  add           Add a classification rule
  delete        Remove a rule by label
  list          List rules
  stats         Show aggregate counters

Modules:
  module load|unload|list   Manage inspection modules

Run '%s <command> -h' for command flags.
`, brand.Name, brand.BinaryName, brand.BinaryName)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "start":
		fs := flag.NewFlagSet("start", flag.ExitOnError)
		configFile := fs.String("config", "", "path to config file")
		foreground := fs.Bool("foreground", false, "run in the foreground")
		fs.Parse(os.Args[2:])
		err = cmd.RunStart(*configFile, *foreground)

	case "run":
		fs := flag.NewFlagSet("run", flag.ExitOnError)
		configFile := fs.String("config", "", "path to config file")
		fs.Parse(os.Args[2:])
		err = cmd.RunDaemon(*configFile)

	case "stop":
		fs := flag.NewFlagSet("stop", flag.ExitOnError)
		configFile := fs.String("config", "", "path to config file")
		fs.Parse(os.Args[2:])
		err = cmd.RunStop(*configFile)

	case "status":
		fs := flag.NewFlagSet("status", flag.ExitOnError)
		socket := fs.String("socket", cmd.DefaultSocket(), "control socket path")
		asJSON := fs.Bool("json", false, "JSON output")
		fs.Parse(os.Args[2:])
		err = cmd.RunStatus(*socket, *asJSON)

	case "attach":
		fs := flag.NewFlagSet("attach", flag.ExitOnError)
		socket := fs.String("socket", cmd.DefaultSocket(), "control socket path")
		mode := fs.String("mode", "generic", "attach mode: native, generic or offload")
		force := fs.Bool("force", false, "replace an existing attachment")
		fs.Parse(os.Args[2:])
		if fs.NArg() != 1 {
			fatalf("usage: %s attach [flags] <interface>", brand.BinaryName)
		}
		err = cmd.RunAttach(*socket, fs.Arg(0), *mode, *force)

	case "detach":
		fs := flag.NewFlagSet("detach", flag.ExitOnError)
		socket := fs.String("socket", cmd.DefaultSocket(), "control socket path")
		fs.Parse(os.Args[2:])
		if fs.NArg() != 1 {
			fatalf("usage: %s detach [flags] <interface>", brand.BinaryName)
		}
		err = cmd.RunDetach(*socket, fs.Arg(0))

	case "add":
		fs := flag.NewFlagSet("add", flag.ExitOnError)
		socket := fs.String("socket", cmd.DefaultSocket(), "control socket path")
		var spec controller.RuleSpec
		fs.StringVar(&spec.Label, "label", "", "unique rule label (required)")
		fs.StringVar(&spec.Action, "action", "", "pass, drop, redirect or count (required)")
		priority := fs.Uint("priority", 0, "rule priority, higher wins")
		fs.StringVar(&spec.Protocol, "proto", "", "tcp, udp, icmp or any")
		fs.StringVar(&spec.SrcIP, "src", "", "source IP or CIDR prefix")
		fs.StringVar(&spec.DstIP, "dst", "", "destination IP or CIDR prefix")
		srcPortMin := fs.Uint("sport-min", 0, "source port range start")
		srcPortMax := fs.Uint("sport-max", 0, "source port range end")
		dstPortMin := fs.Uint("dport-min", 0, "destination port range start")
		dstPortMax := fs.Uint("dport-max", 0, "destination port range end")
		lenMin := fs.Uint("len-min", 0, "packet length range start")
		lenMax := fs.Uint("len-max", 0, "packet length range end")
		fs.StringVar(&spec.TCPFlags, "tcp-flags", "", "required TCP flags, e.g. syn or syn,ack")
		fs.StringVar(&spec.RedirectIf, "redirect-if", "", "redirect target interface")
		rateLimit := fs.Uint("rate-limit", 0, "max matches per second, 0 = unlimited")
		expire := fs.Uint("expire", 0, "rule TTL in seconds, 0 = permanent")
		fs.Parse(os.Args[2:])
		spec.Priority = uint32(*priority)
		spec.SrcPortMin = uint16(*srcPortMin)
		spec.SrcPortMax = uint16(*srcPortMax)
		spec.DstPortMin = uint16(*dstPortMin)
		spec.DstPortMax = uint16(*dstPortMax)
		spec.PktLenMin = uint16(*lenMin)
		spec.PktLenMax = uint16(*lenMax)
		spec.RateLimit = uint32(*rateLimit)
		spec.Expire = uint32(*expire)
		err = cmd.RunAdd(*socket, spec)

	case "delete":
		fs := flag.NewFlagSet("delete", flag.ExitOnError)
		socket := fs.String("socket", cmd.DefaultSocket(), "control socket path")
		fs.Parse(os.Args[2:])
		if fs.NArg() != 1 {
			fatalf("usage: %s delete [flags] <label>", brand.BinaryName)
		}
		err = cmd.RunDelete(*socket, fs.Arg(0))

	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		socket := fs.String("socket", cmd.DefaultSocket(), "control socket path")
		label := fs.String("label", "", "filter by label")
		action := fs.String("action", "", "filter by action")
		withStats := fs.Bool("stats", false, "include per-rule counters")
		asJSON := fs.Bool("json", false, "JSON output")
		fs.Parse(os.Args[2:])
		err = cmd.RunList(*socket, *label, *action, *withStats, *asJSON)

	case "stats":
		fs := flag.NewFlagSet("stats", flag.ExitOnError)
		socket := fs.String("socket", cmd.DefaultSocket(), "control socket path")
		asJSON := fs.Bool("json", false, "JSON output")
		fs.Parse(os.Args[2:])
		err = cmd.RunStats(*socket, *asJSON)

	case "module":
		err = runModule(os.Args[2:])

	case "version":
		fmt.Printf("%s %s\n", brand.Name, brand.Version)

	case "-h", "--help", "help":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runModule(args []string) error {
	if len(args) < 1 {
		fatalf("usage: %s module <load|unload|list> [flags]", brand.BinaryName)
	}
	switch args[0] {
	case "load":
		fs := flag.NewFlagSet("module load", flag.ExitOnError)
		socket := fs.String("socket", cmd.DefaultSocket(), "control socket path")
		fs.Parse(args[1:])
		if fs.NArg() != 1 {
			fatalf("usage: %s module load [flags] <name>", brand.BinaryName)
		}
		return cmd.RunModuleLoad(*socket, fs.Arg(0))
	case "unload":
		fs := flag.NewFlagSet("module unload", flag.ExitOnError)
		socket := fs.String("socket", cmd.DefaultSocket(), "control socket path")
		fs.Parse(args[1:])
		if fs.NArg() != 1 {
			fatalf("usage: %s module unload [flags] <instance-id>", brand.BinaryName)
		}
		return cmd.RunModuleUnload(*socket, fs.Arg(0))
	case "list":
		fs := flag.NewFlagSet("module list", flag.ExitOnError)
		socket := fs.String("socket", cmd.DefaultSocket(), "control socket path")
		fs.Parse(args[1:])
		return cmd.RunModuleList(*socket)
	default:
		fatalf("unknown module command: %s", args[0])
		return nil
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}
