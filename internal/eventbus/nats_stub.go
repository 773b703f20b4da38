// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

//go:build !nats

package eventbus

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
)

func newNATSBus(_, _ string, _ watermill.LoggerAdapter) (*Bus, error) {
	return nil, fmt.Errorf("NATS event bus not available: build with -tags=nats")
}
