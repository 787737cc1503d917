// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/wirewall/internal/errors"
)

func TestDecodeFull(t *testing.T) {
	src := `
log_level = "debug"

daemon {
  socket_path      = "/tmp/wirewall-test.sock"
  workers          = 4
  harvest_interval = "2s"
  sweep_interval   = "500ms"
  metrics_listen   = "127.0.0.1:9477"
}

attach "eth0" {
  mode = "generic"
}

rule "block-scanner" {
  action       = "drop"
  priority     = 10
  protocol     = "tcp"
  src_ip       = "203.0.113.0/24"
  dst_port_min = 22
  tcp_flags    = "syn"
  rate_limit   = 100
  expire       = 3600
}

rule "mirror-dns" {
  action      = "redirect"
  protocol    = "udp"
  dst_port_min = 53
  redirect_if = "eth1"
}
`
	cfg, err := Decode("wirewall.hcl", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/wirewall-test.sock", cfg.Daemon.SocketPath)
	assert.Equal(t, 4, cfg.Daemon.Workers)
	assert.Equal(t, 2*time.Second, cfg.Daemon.Harvest())
	assert.Equal(t, 500*time.Millisecond, cfg.Daemon.Sweep())
	assert.Equal(t, "127.0.0.1:9477", cfg.Daemon.MetricsListen)

	require.Len(t, cfg.Attach, 1)
	assert.Equal(t, "eth0", cfg.Attach[0].Interface)
	assert.Equal(t, "generic", cfg.Attach[0].Mode)

	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, "block-scanner", cfg.Rules[0].Label)
	assert.Equal(t, "drop", cfg.Rules[0].Action)
	assert.Equal(t, uint16(22), cfg.Rules[0].DstPortMin)
	assert.Equal(t, "eth1", cfg.Rules[1].RedirectIf)
}

func TestDecodeDefaults(t *testing.T) {
	cfg, err := Decode("wirewall.hcl", []byte(`rule "r" { action = "pass" }`))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/run/wirewall/ctl.sock", cfg.Daemon.SocketPath)
	assert.Greater(t, cfg.Daemon.Workers, 0)
	assert.Equal(t, 5*time.Second, cfg.Daemon.Harvest())
	assert.Equal(t, time.Second, cfg.Daemon.Sweep())
}

func TestDecodeEnvInterpolation(t *testing.T) {
	t.Setenv("WIREWALL_TEST_SOCKET", "/tmp/from-env.sock")

	cfg, err := Decode("wirewall.hcl", []byte(`
daemon {
  socket_path = env.WIREWALL_TEST_SOCKET
}
`))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env.sock", cfg.Daemon.SocketPath)
}

func TestDecodeRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"bad syntax", `rule "x" {`},
		{"bad log level", `log_level = "trace"`},
		{"bad interval", `daemon { harvest_interval = "soon" }`},
		{"bad attach mode", `attach "eth0" { mode = "turbo" }`},
		{"duplicate attach", "attach \"eth0\" {}\nattach \"eth0\" {}"},
		{"duplicate rule", "rule \"x\" { action = \"pass\" }\nrule \"x\" { action = \"drop\" }"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode("wirewall.hcl", []byte(tc.src))
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), "kind = %v", errors.GetKind(err))
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := t.TempDir() + "/wirewall.hcl"
	require.NoError(t, os.WriteFile(path, []byte(`rule "r" { action = "count" }`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 1)

	_, err = Load(path + ".missing")
	require.Error(t, err)
}
