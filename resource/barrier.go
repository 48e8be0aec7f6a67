// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package resource

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
)

// Transition is one pending state change. Subresource is AllSubresources
// for a blanket transition.
type Transition struct {
	Resource    *Resource
	Subresource int
	Before      State
	After       State
}

// String formats the entry for traces.
func (t Transition) String() string {
	sub := "*"
	if t.Subresource != AllSubresources {
		sub = fmt.Sprint(t.Subresource)
	}
	return fmt.Sprintf("%s[%s] %s->%s", t.Resource.Label(), sub, t.Before, t.After)
}

type transitionKey struct {
	r   *Resource
	sub int
}

// BarrierBatch accumulates transition and UAV barriers until a flush.
//
// Transition updates the resource's tracked state immediately, so later
// requests in the same batch see the post-barrier state.
type BarrierBatch struct {
	transitions []Transition
	index       map[transitionKey]int
	last        map[*Resource]int

	uavs   []*Resource
	uavSet map[*Resource]struct{}
}

// Transition requests that subresource sub (or AllSubresources) of r be in
// state target. The read and update of r's state vector are atomic.
func (b *BarrierBatch) Transition(r *Resource, target State, sub int) {
	if sub != AllSubresources {
		r.checkSub(sub)
	}
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	if sub != AllSubresources {
		if r.states[sub] != target {
			b.add(r, sub, r.states[sub], target)
			r.states[sub] = target
		}
		return
	}

	cur, uniform := r.uniformLocked()
	switch {
	case uniform && cur == target:
		return
	case uniform:
		b.add(r, AllSubresources, cur, target)
	default:
		for i, s := range r.states {
			if s != target {
				b.add(r, i, s, target)
			}
		}
	}
	r.resetLocked(target)
}

// TransitionAll is Transition for states recorded per subresource, as
// produced by a graph builder. len(states) must equal r.Subresources().
func (b *BarrierBatch) TransitionAll(r *Resource, states []State) {
	if len(states) != r.Subresources() {
		panic(errors.AssertionFailedf("resource %q: %d states for %d subresources", r.Label(), len(states), r.Subresources()))
	}
	for i, s := range states {
		b.Transition(r, s, i)
	}
}

func (b *BarrierBatch) add(r *Resource, sub int, before, after State) {
	if b.index == nil {
		b.index = make(map[transitionKey]int)
		b.last = make(map[*Resource]int)
	}
	k := transitionKey{r, sub}
	// Collapse into the pending entry only while it is the latest one for r;
	// otherwise a later blanket entry would be reordered.
	if i, ok := b.index[k]; ok && b.last[r] == i {
		b.transitions[i].After = after
		if b.transitions[i].Before == after {
			b.remove(i)
		}
		return
	}
	b.transitions = append(b.transitions, Transition{Resource: r, Subresource: sub, Before: before, After: after})
	i := len(b.transitions) - 1
	b.index[k] = i
	b.last[r] = i
}

func (b *BarrierBatch) remove(i int) {
	b.transitions = slices.Delete(b.transitions, i, i+1)
	clear(b.index)
	clear(b.last)
	for j, t := range b.transitions {
		b.index[transitionKey{t.Resource, t.Subresource}] = j
		b.last[t.Resource] = j
	}
}

// UAV requests a UAV barrier on r. Repeated requests before a flush
// collapse to one.
func (b *BarrierBatch) UAV(r *Resource) {
	if b.uavSet == nil {
		b.uavSet = make(map[*Resource]struct{})
	}
	if _, ok := b.uavSet[r]; ok {
		return
	}
	b.uavSet[r] = struct{}{}
	b.uavs = append(b.uavs, r)
}

// Transitions returns the pending transitions in request order.
func (b *BarrierBatch) Transitions() []Transition { return b.transitions }

// UAVs returns the pending UAV barriers in request order.
func (b *BarrierBatch) UAVs() []*Resource { return b.uavs }

// Len returns the number of pending barrier entries.
func (b *BarrierBatch) Len() int { return len(b.transitions) + len(b.uavs) }

// Reset drops every pending entry. Tracked states are not rolled back.
func (b *BarrierBatch) Reset() {
	b.transitions = b.transitions[:0]
	b.uavs = b.uavs[:0]
	clear(b.index)
	clear(b.last)
	clear(b.uavSet)
}

// Take moves the pending entries into a new batch and resets b.
func (b *BarrierBatch) Take() *BarrierBatch {
	out := &BarrierBatch{
		transitions: slices.Clone(b.transitions),
		uavs:        slices.Clone(b.uavs),
	}
	b.Reset()
	return out
}

// Merge appends the entries of other without re-evaluating tracked state.
// It is used when the states were already resolved by other's producer.
func (b *BarrierBatch) Merge(other *BarrierBatch) {
	if b.index == nil {
		b.index = make(map[transitionKey]int)
		b.last = make(map[*Resource]int)
	}
	for _, t := range other.transitions {
		b.transitions = append(b.transitions, t)
		i := len(b.transitions) - 1
		b.index[transitionKey{t.Resource, t.Subresource}] = i
		b.last[t.Resource] = i
	}
	for _, r := range other.uavs {
		b.UAV(r)
	}
}
