package espalier

// Item is an opaque reference to a single entry in an external data source.
// The model never interprets items: it stores them, hands them back to the
// Adapter, and compares them. Items must be comparable in the == sense
// (usable as map keys). The untyped nil Item is reserved for the source
// root; adapters must never return typed-nil items.
type Item any

// Role selects which facet of an item Value reports. Adapters are free to
// define their own roles above RoleDisplay.
type Role int

// RoleDisplay is the conventional human-readable representation of an item.
const RoleDisplay Role = 0

// Adapter is the capability surface the model consumes to observe an
// external hierarchical source. A nil Item argument always refers to the
// source root.
//
// Answers must be self-consistent within one synchronization pass: the
// source must not mutate between the first and last adapter call of a
// pass. Mutations are announced through the Updater between passes.
type Adapter interface {
	// HasChildren is the cheap existence predicate. It must answer
	// without enumerating children; the model relies on it to keep
	// unexpanded subtrees unmaterialized.
	HasChildren(item Item) bool

	// ChildCount returns the number of children under item.
	ChildCount(item Item) int

	// ChildAt returns the child of item at position pos, 0-based.
	ChildAt(item Item, pos int) Item

	// ParentOf returns the parent of item, or nil for top-level items.
	// An item that reports itself as its own parent is detached and
	// resolves to no node.
	ParentOf(item Item) Item

	// IndexOf returns the first position >= from at which item occurs
	// among parent's children, or a negative value when it does not
	// occur there at or after from.
	IndexOf(parent, item Item, from int) int

	// Value returns the facet of item selected by role.
	Value(item Item, role Role) any
}

// Sink receives structural change notifications from the model.
//
// Ranges are inclusive, 0-based, contiguous, and valid against the tree
// state at Begin time; the corresponding splice happens between Begin and
// End. Brackets never nest: a removal bracket is fully closed before any
// later insertion bracket opens, and notifications arrive depth-first in
// ascending position order.
type Sink interface {
	// BeginInsert announces that rows first..last are about to appear
	// under parent. An invalid parent ref denotes the root.
	BeginInsert(parent NodeRef, first, last int)
	EndInsert()

	// BeginRemove announces that rows first..last under parent are
	// about to disappear.
	BeginRemove(parent NodeRef, first, last int)
	EndRemove()

	// RefreshAll fires once after an update cycle completes; cached
	// values may all have changed even where no rows moved.
	RefreshAll()
}

// Updater is the narrow control surface handed to adapters so they can
// announce source mutations back to the model. All three methods must be
// called on the model's owner goroutine.
type Updater interface {
	BeginUpdate()
	EndUpdate()
	QueuedUpdate()
}

// UpdaterAware adapters receive the model's Updater when the model is
// created around them.
type UpdaterAware interface {
	AttachUpdater(u Updater)
}

// Scheduler defers fn onto the host's event loop. QueuedUpdate uses it to
// run the completing EndUpdate after the current call stack unwinds, so
// bursts of queued updates coalesce into a single pass.
type Scheduler func(fn func())
