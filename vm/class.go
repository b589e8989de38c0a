package vm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Type objects
// ---------------------------------------------------------------------------

// Type is a class created by BUILD_CLASS (or registered by the host).
// The MRO is linearized once at creation and never changes; the
// attribute dict stays mutable so methods can be added after the fact.
type Type struct {
	Name  string
	Bases []*Type

	// MRO lists the ancestors in resolution order: direct bases first,
	// the root last, the type itself excluded.
	MRO []*Type

	mu    sync.RWMutex
	attrs map[string]Value
}

// NewType creates a type with a C3-linearized MRO. Fails with a
// TypeError when the base order admits no consistent linearization.
func NewType(name string, bases []*Type, namespace map[string]Value) (*Type, error) {
	mro, err := computeMRO(name, bases)
	if err != nil {
		return nil, err
	}
	if namespace == nil {
		namespace = make(map[string]Value)
	}
	return &Type{
		Name:  name,
		Bases: bases,
		MRO:   mro,
		attrs: namespace,
	}, nil
}

// GetAttr looks up an attribute in this type's own dict only.
func (t *Type) GetAttr(name string) (Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.attrs[name]
	return v, ok
}

// SetAttr stores an attribute on this type.
func (t *Type) SetAttr(name string, v Value) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attrs[name] = v
}

// LookupMRO resolves an attribute through the type's own dict and then
// the MRO, returning the first hit.
func (t *Type) LookupMRO(name string) (Value, bool) {
	if v, ok := t.GetAttr(name); ok {
		return v, true
	}
	for _, ancestor := range t.MRO {
		if v, ok := ancestor.GetAttr(name); ok {
			return v, true
		}
	}
	return None, false
}

// IsSubtype reports whether t is other or has other in its MRO.
func (t *Type) IsSubtype(other *Type) bool {
	if t == other {
		return true
	}
	for _, ancestor := range t.MRO {
		if ancestor == other {
			return true
		}
	}
	return false
}

// AttrNames returns the type's own attribute names, sorted.
func (t *Type) AttrNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.attrs))
	for name := range t.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// C3 linearization
// ---------------------------------------------------------------------------

// computeMRO linearizes the base classes with the C3 algorithm:
// merge(MRO(B1)+B1, ..., MRO(Bn)+Bn, [B1..Bn]) where a head may only be
// taken while it appears in no tail.
func computeMRO(name string, bases []*Type) ([]*Type, error) {
	if len(bases) == 0 {
		return nil, nil
	}
	seqs := make([][]*Type, 0, len(bases)+1)
	for _, base := range bases {
		seq := make([]*Type, 0, len(base.MRO)+1)
		seq = append(seq, base)
		seq = append(seq, base.MRO...)
		seqs = append(seqs, seq)
	}
	order := make([]*Type, len(bases))
	copy(order, bases)
	seqs = append(seqs, order)

	mro, ok := c3Merge(seqs)
	if !ok {
		baseNames := make([]string, len(bases))
		for i, b := range bases {
			baseNames[i] = b.Name
		}
		return nil, NewTypeError(fmt.Sprintf(
			"Cannot create a consistent method resolution order (MRO) for bases %s",
			strings.Join(baseNames, ", ")))
	}
	return mro, nil
}

func c3Merge(seqs [][]*Type) ([]*Type, bool) {
	var result []*Type
	for {
		live := seqs[:0]
		for _, seq := range seqs {
			if len(seq) > 0 {
				live = append(live, seq)
			}
		}
		seqs = live
		if len(seqs) == 0 {
			return result, true
		}

		// Pick the first head that appears in no tail.
		var head *Type
		for _, seq := range seqs {
			if !inAnyTail(seq[0], seqs) {
				head = seq[0]
				break
			}
		}
		if head == nil {
			return nil, false
		}
		result = append(result, head)

		for i, seq := range seqs {
			if len(seq) > 0 && seq[0] == head {
				seqs[i] = seq[1:]
			}
		}
	}
}

func inAnyTail(t *Type, seqs [][]*Type) bool {
	for _, seq := range seqs {
		for _, other := range seq[1:] {
			if other == t {
				return true
			}
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Instances
// ---------------------------------------------------------------------------

// Instance is an object of a user-defined type. The attribute dict is
// per-instance; method lookup falls back to the class MRO.
type Instance struct {
	class *Type
	mu    sync.RWMutex
	attrs map[string]Value
}

// NewInstance allocates an instance of t with an empty attribute dict.
func NewInstance(t *Type) *Instance {
	return &Instance{class: t, attrs: make(map[string]Value)}
}

// Class returns the instance's type.
func (i *Instance) Class() *Type { return i.class }

// GetAttr looks up an attribute in the instance dict only.
func (i *Instance) GetAttr(name string) (Value, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	v, ok := i.attrs[name]
	return v, ok
}

// SetAttr stores an attribute on the instance.
func (i *Instance) SetAttr(name string, v Value) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.attrs[name] = v
}

// DeleteAttr removes an instance attribute, reporting whether it existed.
func (i *Instance) DeleteAttr(name string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.attrs[name]; !ok {
		return false
	}
	delete(i.attrs, name)
	return true
}

// AttrNames returns the instance's own attribute names, sorted.
func (i *Instance) AttrNames() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	names := make([]string, 0, len(i.attrs))
	for name := range i.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
