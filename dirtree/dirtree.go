// Package dirtree mirrors a directory subtree as an espalier data source.
// Items are slash-separated paths relative to the mirrored root. Listings
// are cached per directory so adapter answers stay self-consistent within
// one reconciliation pass; the host drops the cache with Invalidate (or
// Refresh) when the filesystem is known to have moved on.
package dirtree

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tamlin/espalier"
)

var (
	// ErrNotDirectory is returned by New when the root path is not a
	// directory.
	ErrNotDirectory = errors.New("dirtree: root is not a directory")
)

// Roles understood by Value.
const (
	// RoleName is the entry's base name.
	RoleName = espalier.RoleDisplay
	// RoleIsDir reports whether the entry is a directory (bool).
	RoleIsDir espalier.Role = 1
	// RoleSize is the entry's size in bytes (int64), 0 for directories.
	RoleSize espalier.Role = 2
	// RoleModTime is the entry's modification time (time.Time).
	RoleModTime espalier.Role = 3
	// RolePath is the entry's slash path relative to the tree root.
	RolePath espalier.Role = 4
)

// Options configures a Tree. The zero value is usable.
type Options struct {
	// ShowHidden includes dot-prefixed entries in listings.
	ShowHidden bool

	// Debounce is the quiet period Watch waits after a burst of
	// filesystem events before invoking the change callback.
	// Defaults to 100ms.
	Debounce time.Duration

	// Logger receives listing and watch diagnostics. May be nil.
	Logger *slog.Logger
}

// entry is one cached listing row. Size and mtime are captured at listing
// time so value reads stay stable until the next Invalidate.
type entry struct {
	name  string
	isDir bool
	size  int64
	mtime time.Time
}

// Tree adapts a directory subtree. All methods except Watch must run on
// the goroutine that owns the mirroring model; Watch's callback fires on
// the watcher goroutine and the host bridges back before touching
// anything else.
type Tree struct {
	root       string // absolute
	showHidden bool
	debounce   time.Duration
	log        *slog.Logger
	updater    espalier.Updater

	listings map[string][]entry // keyed by slash path relative to root, "" = root
}

var (
	_ espalier.Adapter      = (*Tree)(nil)
	_ espalier.UpdaterAware = (*Tree)(nil)
)

// New opens a tree over the directory at root.
func New(root string, opts Options) (*Tree, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("dirtree: resolve root: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("dirtree: stat root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", abs, ErrNotDirectory)
	}
	t := &Tree{
		root:       abs,
		showHidden: opts.ShowHidden,
		debounce:   opts.Debounce,
		log:        opts.Logger,
		listings:   map[string][]entry{},
	}
	if t.debounce <= 0 {
		t.debounce = 100 * time.Millisecond
	}
	if t.log == nil {
		t.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return t, nil
}

// Root returns the absolute path of the mirrored directory.
func (t *Tree) Root() string { return t.root }

// AttachUpdater wires the updater Refresh announces through.
func (t *Tree) AttachUpdater(u espalier.Updater) { t.updater = u }

// Invalidate drops every cached listing. The next adapter question reads
// the filesystem again.
func (t *Tree) Invalidate() {
	t.listings = map[string][]entry{}
}

// Refresh drops the cache and queues a reconciliation pass on the
// attached updater. Call it on the model's goroutine after a watch
// callback has been bridged over.
func (t *Tree) Refresh() {
	t.Invalidate()
	if t.updater != nil {
		t.updater.QueuedUpdate()
	}
}

// listing returns the cached rows for the directory at rel, reading and
// sorting them on first use. Unreadable directories list as empty.
func (t *Tree) listing(rel string) []entry {
	if rows, ok := t.listings[rel]; ok {
		return rows
	}
	dirents, err := os.ReadDir(t.abs(rel))
	if err != nil {
		t.log.Warn("dirtree: list failed", "dir", rel, "err", err)
		t.listings[rel] = nil
		return nil
	}
	rows := make([]entry, 0, len(dirents))
	for _, de := range dirents {
		name := de.Name()
		if !t.showHidden && strings.HasPrefix(name, ".") {
			continue
		}
		row := entry{name: name, isDir: de.IsDir()}
		if info, err := de.Info(); err == nil {
			if !row.isDir {
				row.size = info.Size()
			}
			row.mtime = info.ModTime()
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].isDir != rows[j].isDir {
			return rows[i].isDir
		}
		return rows[i].name < rows[j].name
	})
	t.listings[rel] = rows
	return rows
}

func (t *Tree) abs(rel string) string {
	if rel == "" {
		return t.root
	}
	return filepath.Join(t.root, filepath.FromSlash(rel))
}

// rel extracts the slash path an item carries; the nil item is the root.
func rel(item espalier.Item) string {
	if item == nil {
		return ""
	}
	return item.(string)
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// entryOf finds the listing row behind an item via its parent directory.
func (t *Tree) entryOf(p string) (entry, bool) {
	dir, base := path.Split(p)
	dir = strings.TrimSuffix(dir, "/")
	for _, row := range t.listing(dir) {
		if row.name == base {
			return row, true
		}
	}
	return entry{}, false
}

// ============================================================================
// Adapter surface
// ============================================================================

// HasChildren answers from the parent directory's listing: directories
// report children without being listed themselves. An empty directory
// therefore reports true until it is actually expanded, the usual
// optimistic answer for filesystem trees.
func (t *Tree) HasChildren(item espalier.Item) bool {
	if item == nil {
		return true
	}
	row, ok := t.entryOf(rel(item))
	return ok && row.isDir
}

func (t *Tree) ChildCount(item espalier.Item) int {
	return len(t.listing(rel(item)))
}

func (t *Tree) ChildAt(item espalier.Item, pos int) espalier.Item {
	dir := rel(item)
	return join(dir, t.listing(dir)[pos].name)
}

func (t *Tree) ParentOf(item espalier.Item) espalier.Item {
	p := rel(item)
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return nil // top-level entry
	}
	return p[:idx]
}

func (t *Tree) IndexOf(parent, item espalier.Item, from int) int {
	base := path.Base(rel(item))
	rows := t.listing(rel(parent))
	for i := from; i < len(rows); i++ {
		if rows[i].name == base {
			return i
		}
	}
	return -1
}

func (t *Tree) Value(item espalier.Item, role espalier.Role) any {
	if item == nil {
		return nil
	}
	p := rel(item)
	if role == RolePath {
		return p
	}
	row, ok := t.entryOf(p)
	if !ok {
		return nil
	}
	switch role {
	case RoleName:
		return row.name
	case RoleIsDir:
		return row.isDir
	case RoleSize:
		return row.size
	case RoleModTime:
		return row.mtime
	}
	return nil
}
