// Package ownerindex maps owners to the entries they hold.
//
// Each owner has a dense slice of entry ids, and every indexed id records the
// owner and slot it occupies. Add and Remove are O(1): removal moves the last
// id of the owner's slice into the vacated slot and truncates. List order is
// therefore insertion order only until the first removal; callers may rely on
// membership, never on order.
//
// An Index is not safe for concurrent use. The registry serializes access.
package ownerindex

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotIndexed is returned by Remove when id is not held by owner.
	ErrNotIndexed = errors.New("ownerindex: entry not indexed under owner")
	// ErrAlreadyIndexed is returned by Add when id is already held by some owner.
	ErrAlreadyIndexed = errors.New("ownerindex: entry already indexed")
	// ErrCorrupt is returned by Check when the positional invariant is broken.
	ErrCorrupt = errors.New("ownerindex: index corrupt")
)

type slot struct {
	owner string
	pos   int
}

// Index is the forward (owner -> ids) and reverse (id -> owner, position) mapping.
type Index struct {
	lists map[string][]uint64
	slots map[uint64]slot
}

func New() *Index {
	return &Index{
		lists: make(map[string][]uint64),
		slots: make(map[uint64]slot),
	}
}

// Add appends id to owner's list.
func (x *Index) Add(owner string, id uint64) error {
	if cur, ok := x.slots[id]; ok {
		return fmt.Errorf("%w: entry %d held by %q", ErrAlreadyIndexed, id, cur.owner)
	}
	list := x.lists[owner]
	x.slots[id] = slot{owner: owner, pos: len(list)}
	x.lists[owner] = append(list, id)
	return nil
}

// Remove deletes id from owner's list by swapping the last element into its slot.
func (x *Index) Remove(owner string, id uint64) error {
	s, ok := x.slots[id]
	if !ok || s.owner != owner {
		return fmt.Errorf("%w: entry %d, owner %q", ErrNotIndexed, id, owner)
	}
	list := x.lists[owner]
	last := len(list) - 1
	if s.pos > last || list[s.pos] != id {
		return fmt.Errorf("%w: entry %d expected at %d for %q", ErrCorrupt, id, s.pos, owner)
	}
	if s.pos != last {
		moved := list[last]
		list[s.pos] = moved
		x.slots[moved] = slot{owner: owner, pos: s.pos}
	}
	list = list[:last]
	if len(list) == 0 {
		delete(x.lists, owner)
	} else {
		x.lists[owner] = list
	}
	delete(x.slots, id)
	return nil
}

// List returns a snapshot of the ids held by owner.
func (x *Index) List(owner string) []uint64 {
	list := x.lists[owner]
	if len(list) == 0 {
		return nil
	}
	return append([]uint64(nil), list...)
}

// OwnerOf returns the owner currently holding id.
func (x *Index) OwnerOf(id uint64) (string, bool) {
	s, ok := x.slots[id]
	return s.owner, ok
}

// Count returns the number of ids held by owner.
func (x *Index) Count(owner string) int { return len(x.lists[owner]) }

// Len returns the number of indexed ids across all owners.
func (x *Index) Len() int { return len(x.slots) }

// Owners returns every owner holding at least one id, sorted.
func (x *Index) Owners() []string {
	out := make([]string, 0, len(x.lists))
	for owner := range x.lists {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out
}

// Check verifies list[owner][pos[id]] == id for every indexed id, and that
// every list element has a matching reverse slot.
func (x *Index) Check() error {
	total := 0
	for owner, list := range x.lists {
		if len(list) == 0 {
			return fmt.Errorf("%w: empty list retained for %q", ErrCorrupt, owner)
		}
		for pos, id := range list {
			s, ok := x.slots[id]
			if !ok {
				return fmt.Errorf("%w: entry %d in %q list has no slot", ErrCorrupt, id, owner)
			}
			if s.owner != owner || s.pos != pos {
				return fmt.Errorf("%w: entry %d slot (%q,%d) but found at (%q,%d)", ErrCorrupt, id, s.owner, s.pos, owner, pos)
			}
		}
		total += len(list)
	}
	if total != len(x.slots) {
		return fmt.Errorf("%w: %d listed ids but %d slots", ErrCorrupt, total, len(x.slots))
	}
	return nil
}
