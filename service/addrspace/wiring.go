// SPDX-License-Identifier: BSD-3-Clause

package addrspace

import (
	"context"

	"github.com/mtp-gateway/gateway/pkg/packml"
	"github.com/mtp-gateway/gateway/pkg/quality"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
	"github.com/mtp-gateway/gateway/service/servicemgr"
	"github.com/mtp-gateway/gateway/service/tagmgr"
)

// BindTagManager subscribes to every Tag Manager change: the new value is
// written onto every bound DataAssembly-attribute node and the tag's direct
// Tags/ node, and onto every interlock-binding node as a truthy/falsy
// UInt32.
func (s *Space) BindTagManager(tags *tagmgr.Manager) (unsubscribe func()) {
	return tags.Subscribe(func(ctx context.Context, tagName string, old, newVal tagmodel.Value) {
		s.mu.RLock()
		boundNodes := append([]string(nil), s.tagBindings[tagName]...)
		directNode := s.tagNodes[tagName]
		interlockNodes := append([]string(nil), s.interlockBindings[tagName]...)
		s.mu.RUnlock()

		for _, nodeID := range boundNodes {
			if n, ok := s.Node(nodeID); ok {
				n.set(newVal)
			}
		}
		if directNode != "" {
			if n, ok := s.Node(directNode); ok {
				n.set(newVal)
			}
		}
		if len(interlockNodes) == 0 {
			return
		}
		truthy, _ := newVal.AsBool()
		intVal := uint32(0)
		if truthy {
			intVal = 1
		}
		iv := tagmodel.NewValue(intVal, quality.Good)
		for _, nodeID := range interlockNodes {
			if n, ok := s.Node(nodeID); ok {
				n.set(iv)
			}
		}
	})
}

// BindServiceManager subscribes to every Service Manager state change,
// writing the new state's integer value onto the service's StateCur node.
func (s *Space) BindServiceManager(svc *servicemgr.Manager) (unsubscribe func()) {
	return svc.Subscribe(func(ctx context.Context, service string, from, to packml.State) {
		s.mu.RLock()
		sn, ok := s.serviceNodes[service]
		s.mu.RUnlock()
		if !ok {
			return
		}
		n, ok := s.Node(sn.StateCur)
		if !ok {
			return
		}
		n.set(tagmodel.NewValue(uint32(to), quality.Good))
	})
}
