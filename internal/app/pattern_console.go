// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relabs-tech/head_tracker/internal/motion"
	"github.com/relabs-tech/head_tracker/internal/osc"
)

// RunPatternConsole prints the OSC messages pattern would produce for the
// mock head motion, one per interval, until ctx is cancelled. Nothing is
// sent on the network.
func RunPatternConsole(ctx context.Context, pattern string, interval time.Duration, clk clock.Clock, out io.Writer) error {
	p, err := osc.ParsePattern(pattern)
	if err != nil {
		return err
	}

	src := motion.NewMockSource(clk)
	defer src.Close()

	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		s, err := src.Next(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, formatMessage(p, osc.NewAttitude(s.Quaternion)))
	}
}

// formatMessage renders the message for a as "address v1 v2 ...".
func formatMessage(p osc.Pattern, a osc.Attitude) string {
	var b strings.Builder
	b.WriteString(p.Address)
	for _, v := range p.Values(a) {
		fmt.Fprintf(&b, " %8.3f", v)
	}
	return b.String()
}
