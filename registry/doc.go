// Package registry is the bookkeeping engine of a permanent registry of creative works.
//
// A Registry composes four parts behind one mutation boundary:
//
//   - a sequencer.Sequencer that issues entry ids (first id is 1, never reused),
//   - an EntryStore holding each entry's immutable fields and its window-gated
//     metadata pointer and renderer delegate,
//   - an ownerindex.Index giving O(1) owner listing, add and remove,
//   - a Gate, the pure policy deciding whether a metadata edit is allowed.
//
// Every committed mutation appends a model.ChangeRecord to an in-memory log and
// hands it to the configured Sink. The log alone is enough to rebuild the
// registry (see Restore).
//
// The content commitment is the CID of the payload supplied at mint and never
// changes. The metadata pointer starts equal to that payload and may move while
// the window is open; afterwards it is frozen. With Gate.Immutable set, no edit
// is ever accepted.
//
// The registry never calls an external renderer. Resolve only reports that a
// delegate should be asked; following it is the caller's job (see package
// renderer).
package registry
