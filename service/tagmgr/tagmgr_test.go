// SPDX-License-Identifier: BSD-3-Clause

package tagmgr_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/connector"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
	"github.com/mtp-gateway/gateway/service/tagmgr"
)

func TestReadTagAppliesScaleAndNotifies(t *testing.T) {
	mock := connector.NewMockConnector("plc1", map[string]any{"40001": float64(100)})
	require.NoError(t, mock.Connect(context.Background()))

	m := tagmgr.New()
	m.RegisterConnector("plc1", mock, time.Second)
	require.NoError(t, m.RegisterTag(tagmodel.Tag{
		Name:      "Tank.Level",
		Connector: "plc1",
		Address:   "40001",
		DataType:  tagmodel.DataTypeFloat64,
		Scale:     &tagmodel.ScaleConfig{Gain: 0.1, Offset: 5},
	}))

	var gotTag string
	var gotVal tagmodel.Value
	m.Subscribe(func(ctx context.Context, tagName string, old, newVal tagmodel.Value) {
		gotTag = tagName
		gotVal = newVal
	})

	v, err := m.ReadTag(context.Background(), "Tank.Level")
	require.NoError(t, err)
	require.InDelta(t, 15.0, v.Value.(float64), 1e-9)
	require.Equal(t, "Tank.Level", gotTag)
	require.InDelta(t, 15.0, gotVal.Value.(float64), 1e-9)
}

func TestReadTagUnknownName(t *testing.T) {
	m := tagmgr.New()
	_, err := m.ReadTag(context.Background(), "nope")
	require.ErrorIs(t, err, tagmgr.ErrUnknownTag)
}

func TestRegisterTagUnknownConnector(t *testing.T) {
	m := tagmgr.New()
	err := m.RegisterTag(tagmodel.Tag{Name: "t", Connector: "missing"})
	require.ErrorIs(t, err, tagmgr.ErrUnknownConnector)
}

func TestWriteTagRejectsReadOnly(t *testing.T) {
	mock := connector.NewMockConnector("plc1", nil)
	require.NoError(t, mock.Connect(context.Background()))

	m := tagmgr.New()
	m.RegisterConnector("plc1", mock, time.Second)
	require.NoError(t, m.RegisterTag(tagmodel.Tag{
		Name: "ro", Connector: "plc1", Address: "40001", DataType: tagmodel.DataTypeFloat64,
	}))

	ok, err := m.WriteTag(context.Background(), "ro", 1.0)
	require.False(t, ok)
	require.ErrorIs(t, err, tagmgr.ErrNotWritable)
}

type denyAll struct{}

func (denyAll) AllowWrite(string) error { return context.DeadlineExceeded }

func TestWriteTagDeniedBySafetyController(t *testing.T) {
	mock := connector.NewMockConnector("plc1", map[string]any{"40001": float64(0)})
	require.NoError(t, mock.Connect(context.Background()))

	m := tagmgr.New(tagmgr.WithSafetyController(denyAll{}))
	m.RegisterConnector("plc1", mock, time.Second)
	require.NoError(t, m.RegisterTag(tagmodel.Tag{
		Name: "w", Connector: "plc1", Address: "40001", DataType: tagmodel.DataTypeFloat64, Writable: true,
	}))

	ok, err := m.WriteTag(context.Background(), "w", 5.0)
	require.False(t, ok)
	require.ErrorIs(t, err, tagmgr.ErrWriteDenied)
}

func TestWriteTagAppliesInverseScaleAndConfirms(t *testing.T) {
	mock := connector.NewMockConnector("plc1", map[string]any{"40001": float64(0)})
	require.NoError(t, mock.Connect(context.Background()))

	m := tagmgr.New()
	m.RegisterConnector("plc1", mock, time.Second)
	require.NoError(t, m.RegisterTag(tagmodel.Tag{
		Name: "w", Connector: "plc1", Address: "40001", DataType: tagmodel.DataTypeFloat64,
		Writable: true, Scale: &tagmodel.ScaleConfig{Gain: 0.1, Offset: 5},
	}))

	ok, err := m.WriteTag(context.Background(), "w", 15.0)
	require.NoError(t, err)
	require.True(t, ok)

	st, ok := m.State("w")
	require.True(t, ok)
	require.InDelta(t, 15.0, st.Current().Value.(float64), 1e-9)
}

func TestRunStartsGroupsAndStopsOnCancel(t *testing.T) {
	mock := connector.NewMockConnector("plc1", map[string]any{"40001": float64(42)})
	require.NoError(t, mock.Connect(context.Background()))

	m := tagmgr.New(tagmgr.WithDefaultPollInterval(10 * time.Millisecond))
	m.RegisterConnector("plc1", mock, 0)
	require.NoError(t, m.RegisterTag(tagmodel.Tag{
		Name: "t", Connector: "plc1", Address: "40001", DataType: tagmodel.DataTypeFloat64,
	}))

	changes := make(chan tagmodel.Value, 8)
	m.Subscribe(func(ctx context.Context, tagName string, old, newVal tagmodel.Value) {
		select {
		case changes <- newVal:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, nil) }()

	select {
	case v := <-changes:
		require.Equal(t, float64(42), v.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poll loop to observe a value")
	}

	<-done
}
