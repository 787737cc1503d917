// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux
// +build !linux

package dataplane

import "grimm.is/wirewall/internal/errors"

// SystemLink is unavailable off Linux; the daemon still builds so the
// control plane and tests run on development machines.
type SystemLink struct{}

// NewSystemLink reports the platform limitation.
func NewSystemLink() (*SystemLink, error) {
	return &SystemLink{}, nil
}

// Close is a no-op.
func (l *SystemLink) Close() {}

// Resolve always fails off Linux.
func (l *SystemLink) Resolve(name string) (int32, error) {
	return 0, errors.New(errors.KindUnavailable, "packet capture requires linux")
}

// Supports always fails off Linux.
func (l *SystemLink) Supports(name string, mode Mode) error {
	return errors.New(errors.KindUnavailable, "packet capture requires linux")
}

// Open always fails off Linux.
func (l *SystemLink) Open(name string) (PacketConn, error) {
	return nil, errors.New(errors.KindUnavailable, "packet capture requires linux")
}
