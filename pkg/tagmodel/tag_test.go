// SPDX-License-Identifier: BSD-3-Clause

package tagmodel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/quality"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

func TestScaleConfigApplyInvert(t *testing.T) {
	s := &tagmodel.ScaleConfig{Gain: 0.1, Offset: 5}
	require.InDelta(t, 15.0, s.Apply(100), 1e-9)

	raw, err := s.Invert(15.0)
	require.NoError(t, err)
	require.InDelta(t, 100.0, raw, 1e-9)
}

func TestScaleConfigInvertZeroGain(t *testing.T) {
	s := &tagmodel.ScaleConfig{Gain: 0, Offset: 1}
	_, err := s.Invert(10)
	require.Error(t, err)
}

func TestCoerceBool(t *testing.T) {
	v, err := tagmodel.Coerce(tagmodel.DataTypeBool, float64(1))
	require.NoError(t, err)
	require.Equal(t, true, v)
}

func TestCoerceUnsignedRejectsNegative(t *testing.T) {
	_, err := tagmodel.Coerce(tagmodel.DataTypeUint16, float64(-1))
	require.ErrorIs(t, err, tagmodel.ErrCoercion)
}

func TestStateUpdateTracksLastGoodAndChanged(t *testing.T) {
	tag := tagmodel.Tag{Name: "t1", DataType: tagmodel.DataTypeFloat64}
	st := tagmodel.NewState(tag)

	changed := st.Update(tagmodel.NewValue(10.0, quality.Good))
	require.True(t, changed)

	lg, ok := st.LastGood()
	require.True(t, ok)
	require.Equal(t, 10.0, lg.Value)

	changed = st.Update(tagmodel.NewValue(10.0, quality.Good))
	require.False(t, changed, "identical value+quality should not be reported as changed")

	st.Update(tagmodel.NewValue(nil, quality.BadNoCommunication))
	lg, ok = st.LastGood()
	require.True(t, ok)
	require.Equal(t, 10.0, lg.Value, "last good value must be preserved across bad samples")
}

func TestConnectorHealthy(t *testing.T) {
	h := tagmodel.NewConnectorHealth()
	require.False(t, h.Healthy())

	h.SetState(tagmodel.ConnectorConnected)
	h.RecordSuccess(false)
	require.True(t, h.Healthy())

	h.RecordError(nil)
	require.False(t, h.Healthy())
	require.Equal(t, 1, h.ConsecutiveErrors())

	h.RecordSuccess(false)
	require.Equal(t, 0, h.ConsecutiveErrors())
}
