// SPDX-License-Identifier: BSD-3-Clause

package safety_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/quality"
	"github.com/mtp-gateway/gateway/pkg/safety"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

type fakeTagReader struct {
	values map[string]any
}

func (f fakeTagReader) ReadTag(ctx context.Context, name string) (tagmodel.Value, error) {
	return tagmodel.NewValue(f.values[name], quality.Good), nil
}

func TestAllowWriteRejectsNonAllowlisted(t *testing.T) {
	c := safety.NewController(safety.Config{WritableTags: map[string]bool{"PLC.Heater": true}}, fakeTagReader{})
	require.NoError(t, c.AllowWrite("PLC.Heater"))
	require.Error(t, c.AllowWrite("PLC.Pump"))
}

func TestRateLimitExhausts(t *testing.T) {
	c := safety.NewController(safety.Config{
		WritableTags:       map[string]bool{"PLC.Heater": true},
		MaxWritesPerSecond: 1,
		Burst:              1,
	}, fakeTagReader{})

	require.NoError(t, c.AllowWrite("PLC.Heater"))
	require.Error(t, c.AllowWrite("PLC.Heater"), "second write within the same instant should exceed burst")
}

func TestSafeStateTagsReturnsCopy(t *testing.T) {
	c := safety.NewController(safety.Config{SafeState: map[string]any{"PLC.Heater": false}}, fakeTagReader{})
	tags := c.SafeStateTags()
	tags["PLC.Heater"] = true
	require.Equal(t, false, c.SafeStateTags()["PLC.Heater"], "mutating the returned map must not affect internal state")
}

func TestInterlockedBlocksWhenSourceMismatches(t *testing.T) {
	c := safety.NewController(safety.Config{
		Interlocks: map[string][]safety.InterlockBinding{
			"Dosing": {{SourceTag: "valve_safe", RequiredValue: true, Message: "valve not safe"}},
		},
	}, fakeTagReader{values: map[string]any{"valve_safe": false}})

	blocked, reason := c.Interlocked(context.Background(), "Dosing")
	require.True(t, blocked)
	require.Equal(t, "valve not safe", reason)
}

func TestInterlockedPassesWhenSourceMatches(t *testing.T) {
	c := safety.NewController(safety.Config{
		Interlocks: map[string][]safety.InterlockBinding{
			"Dosing": {{SourceTag: "valve_safe", RequiredValue: true, Message: "valve not safe"}},
		},
	}, fakeTagReader{values: map[string]any{"valve_safe": true}})

	blocked, _ := c.Interlocked(context.Background(), "Dosing")
	require.False(t, blocked)
}

func TestInterlockedNoBindingsNeverBlocks(t *testing.T) {
	c := safety.NewController(safety.Config{}, fakeTagReader{})
	blocked, _ := c.Interlocked(context.Background(), "Unbound")
	require.False(t, blocked)
}
