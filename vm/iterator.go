package vm

import (
	"fmt"
	"sync"
)

// Iterator walks a snapshot of a sequence. GET_ITER takes the snapshot
// at iteration start, so mutating the source container mid-loop does not
// disturb an iteration already underway.
type Iterator struct {
	mu    sync.Mutex
	items []Value
	pos   int
}

// NewIterator creates an iterator over items. The slice is owned by the
// iterator.
func NewIterator(items []Value) *Iterator {
	return &Iterator{items: items}
}

// Next returns the next element, or false when exhausted. Exhaustion is
// permanent.
func (it *Iterator) Next() (Value, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.pos >= len(it.items) {
		return None, false
	}
	v := it.items[it.pos]
	it.pos++
	return v, true
}

// Iterate converts a value into something FOR_ITER can drive: iterators
// and generators pass through unchanged, containers and strings get a
// fresh snapshot iterator.
func Iterate(v Value) (Value, error) {
	switch v.Kind() {
	case KindIterator, KindGenerator:
		return v, nil
	case KindList:
		return MakeIterator(NewIterator(v.List().Snapshot())), nil
	case KindTuple:
		items := v.Tuple().Items()
		snapshot := make([]Value, len(items))
		copy(snapshot, items)
		return MakeIterator(NewIterator(snapshot)), nil
	case KindStr:
		runes := []rune(v.Str())
		items := make([]Value, len(runes))
		for i, r := range runes {
			items[i] = MakeStr(string(r))
		}
		return MakeIterator(NewIterator(items)), nil
	case KindDict:
		keys := v.Dict().Keys()
		items := make([]Value, len(keys))
		for i, k := range keys {
			items[i] = k.Value()
		}
		return MakeIterator(NewIterator(items)), nil
	case KindSet:
		return MakeIterator(NewIterator(v.Set().Elements())), nil
	default:
		return None, NewTypeError(fmt.Sprintf("'%s' object is not iterable", v.TypeName()))
	}
}
