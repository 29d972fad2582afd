// SPDX-License-Identifier: BSD-3-Clause

package addrspace_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/connector"
	"github.com/mtp-gateway/gateway/pkg/daassembly"
	"github.com/mtp-gateway/gateway/pkg/packml"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
	"github.com/mtp-gateway/gateway/service/addrspace"
	"github.com/mtp-gateway/gateway/service/servicemgr"
	"github.com/mtp-gateway/gateway/service/tagmgr"
)

func newTagManager(t *testing.T) (*tagmgr.Manager, *connector.MockConnector) {
	t.Helper()
	mc := connector.NewMockConnector("plc", map[string]any{"lt101": 50.0})
	tags := tagmgr.New()
	tags.RegisterConnector("plc", mc, 2*time.Millisecond)
	require.NoError(t, tags.RegisterTag(tagmodel.Tag{Name: "lt101.pv", Connector: "plc", Address: "lt101", DataType: tagmodel.DataTypeFloat64, Writable: true}))
	return tags, mc
}

func TestNodeIDUsesExpandedForm(t *testing.T) {
	tags, _ := newTagManager(t)
	space := addrspace.New("urn:mtp:test", "Reactor1", tags, nil)
	id := space.NodeID("PEA_Reactor1.DataAssemblies.LT101.V")
	require.Equal(t, "nsu=urn:mtp:test;s=PEA_Reactor1.DataAssemblies.LT101.V", id)
}

func TestAddDataAssemblyRegistersBoundAttributeNode(t *testing.T) {
	tags, _ := newTagManager(t)
	space := addrspace.New("urn:mtp:test", "Reactor1", tags, nil)

	hh, h, l, ll := 90.0, 80.0, 10.0, 5.0
	err := space.AddDataAssembly(daassembly.Assembly{
		Name:     "LT101",
		Type:     daassembly.TypeAnaMon,
		Bindings: map[string]string{"V": "lt101.pv"},
		Limits:   &daassembly.MonitorLimits{HH: hh, H: h, L: l, LL: ll},
	})
	require.NoError(t, err)

	bindings := space.TagBindings()
	require.Contains(t, bindings, "lt101.pv")
	require.Len(t, bindings["lt101.pv"], 1)

	nodeID := bindings["lt101.pv"][0]
	require.Contains(t, nodeID, "PEA_Reactor1.DataAssemblies.LT101.V")
}

func TestAddServiceRetainsStateMachineNodes(t *testing.T) {
	tags, _ := newTagManager(t)
	space := addrspace.New("urn:mtp:test", "Reactor1", tags, nil)
	require.NoError(t, space.AddService("Feed"))

	sn, ok := space.ServiceNodeSet("Feed")
	require.True(t, ok)
	require.Contains(t, sn.CommandOp, "CommandOp")
	require.Contains(t, sn.StateCur, "StateCur")
	require.Contains(t, sn.ProcedureCur, "ProcedureCur")
}

func TestBindTagManagerPropagatesValueToBoundNode(t *testing.T) {
	tags, mc := newTagManager(t)
	space := addrspace.New("urn:mtp:test", "Reactor1", tags, nil)
	require.NoError(t, space.AddDataAssembly(daassembly.Assembly{
		Name:     "LT101",
		Type:     daassembly.TypeAnaView,
		Bindings: map[string]string{"V": "lt101.pv"},
	}))
	unsubscribe := space.BindTagManager(tags)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tags.Run(ctx, nil)

	mc.Set("lt101", 77.0)

	bindings := space.TagBindings()
	nodeID := bindings["lt101.pv"][0]
	require.Eventually(t, func() bool {
		n, ok := space.Node(nodeID)
		if !ok {
			return false
		}
		f, ok := n.Value().AsFloat64()
		return ok && f == 77.0
	}, 2*time.Second, 10*time.Millisecond)
}

type fakeCommander struct {
	sent      packml.Command
	procedure *int
	requested int
	current   int
}

func (f *fakeCommander) SendCommand(ctx context.Context, service string, cmd packml.Command, procedureID *int) (packml.Result, error) {
	f.sent = cmd
	f.procedure = procedureID
	return packml.Result{Success: true}, nil
}
func (f *fakeCommander) RequestProcedure(service string, id int) error {
	f.requested = id
	return nil
}
func (f *fakeCommander) CurrentProcedure(service string) (int, error) { return f.current, nil }

func TestHandleWriteCommandOpDispatchesParsedCommand(t *testing.T) {
	tags, _ := newTagManager(t)
	cmdr := &fakeCommander{current: 2}
	space := addrspace.New("urn:mtp:test", "Reactor1", tags, cmdr)
	require.NoError(t, space.AddService("Feed"))

	sn, _ := space.ServiceNodeSet("Feed")
	require.NoError(t, space.HandleWrite(context.Background(), sn.CommandOp, 2)) // START
	require.Equal(t, packml.CommandStart, cmdr.sent)
}

func TestHandleWriteProcedureReqStoresPending(t *testing.T) {
	tags, _ := newTagManager(t)
	cmdr := &fakeCommander{}
	space := addrspace.New("urn:mtp:test", "Reactor1", tags, cmdr)
	require.NoError(t, space.AddService("Feed"))

	sn, _ := space.ServiceNodeSet("Feed")
	require.NoError(t, space.HandleWrite(context.Background(), sn.ProcedureReq, 3))
	require.Equal(t, 3, cmdr.requested)
}

func TestHandleWriteRejectsUnknownNode(t *testing.T) {
	tags, _ := newTagManager(t)
	space := addrspace.New("urn:mtp:test", "Reactor1", tags, nil)
	err := space.HandleWrite(context.Background(), "nsu=urn:mtp:test;s=nonexistent", 1)
	require.ErrorIs(t, err, addrspace.ErrUnknownNode)
}

func TestHandleWriteRejectsNonWritableNode(t *testing.T) {
	tags, _ := newTagManager(t)
	space := addrspace.New("urn:mtp:test", "Reactor1", tags, nil)
	require.NoError(t, space.AddDataAssembly(daassembly.Assembly{
		Name:     "LT101",
		Type:     daassembly.TypeAnaView,
		Bindings: map[string]string{"V": "lt101.pv"},
	}))
	bindings := space.TagBindings()
	nodeID := bindings["lt101.pv"][0]
	err := space.HandleWrite(context.Background(), nodeID, 1.0)
	require.ErrorIs(t, err, addrspace.ErrNotWritable)
}

func TestBindServiceManagerWritesStateCur(t *testing.T) {
	tags, _ := newTagManager(t)
	space := addrspace.New("urn:mtp:test", "Reactor1", tags, nil)
	require.NoError(t, space.AddService("Feed"))

	svcMgr := servicemgr.New("servicemgr", servicemgr.Deps{TagWriter: tags})
	require.NoError(t, svcMgr.RegisterService(servicemgr.ServiceConfig{Name: "Feed", Mode: servicemgr.ProxyThick}))
	unsubscribe := space.BindServiceManager(svcMgr)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svcMgr.Run(ctx, nil)

	_, err := svcMgr.SendCommand(context.Background(), "Feed", packml.CommandStart, nil)
	require.NoError(t, err)

	sn, _ := space.ServiceNodeSet("Feed")
	require.Eventually(t, func() bool {
		n, ok := space.Node(sn.StateCur)
		if !ok {
			return false
		}
		v, ok := n.Value().Value.(uint32)
		return ok && v == uint32(packml.StateExecute)
	}, 2*time.Second, 10*time.Millisecond)
}
