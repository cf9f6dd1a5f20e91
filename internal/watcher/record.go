package watcher

import (
	"fmt"
	"strings"

	"github.com/listenupapp/changefeed/internal/errors"
)

// Kind is the type of change a Record describes.
// Values are single bits so that kinds combine into a ChangeMask.
type Kind uint8

const (
	// Created is reported when an entry appears.
	Created Kind = 1 << iota
	// Deleted is reported when an entry disappears.
	Deleted
	// Changed is reported when an entry's content or attributes change.
	Changed
	// Renamed is reported when an entry is renamed within the watched tree.
	Renamed
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Created:
		return "Created"
	case Deleted:
		return "Deleted"
	case Changed:
		return "Changed"
	case Renamed:
		return "Renamed"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// valid reports whether k is exactly one of the four defined kinds.
func (k Kind) valid() bool {
	switch k {
	case Created, Deleted, Changed, Renamed:
		return true
	default:
		return false
	}
}

// ChangeMask selects the kinds a session observes.
type ChangeMask uint8

// MaskAll selects every kind.
const MaskAll = ChangeMask(Created | Deleted | Changed | Renamed)

// MaskOf builds a mask from kinds.
func MaskOf(kinds ...Kind) ChangeMask {
	var m ChangeMask
	for _, k := range kinds {
		m |= ChangeMask(k)
	}
	return m
}

// Has reports whether k is selected.
func (m ChangeMask) Has(k Kind) bool {
	return k.valid() && m&ChangeMask(k) != 0
}

// Valid reports whether the mask selects at least one defined kind.
func (m ChangeMask) Valid() bool {
	return m&MaskAll != 0
}

// Kinds returns the selected kinds in bit order.
func (m ChangeMask) Kinds() []Kind {
	kinds := make([]Kind, 0, 4)
	for _, k := range []Kind{Created, Deleted, Changed, Renamed} {
		if m.Has(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (m ChangeMask) String() string {
	kinds := m.Kinds()
	if len(kinds) == 0 {
		return "none"
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, "|")
}

// ParseChangeMask parses a comma-separated list of kind names, e.g.
// "created,renamed". "all" selects every kind. Names are case-insensitive.
func ParseChangeMask(s string) (ChangeMask, error) {
	var m ChangeMask
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		switch name {
		case "":
			continue
		case "all":
			m |= MaskAll
		case "created":
			m |= ChangeMask(Created)
		case "deleted":
			m |= ChangeMask(Deleted)
		case "changed":
			m |= ChangeMask(Changed)
		case "renamed":
			m |= ChangeMask(Renamed)
		default:
			return 0, errors.InvalidConfigurationf("unknown change kind %q", part)
		}
	}
	if !m.Valid() {
		return 0, errors.InvalidConfigurationf("change mask %q selects no kinds", s)
	}
	return m, nil
}

// Record describes one file system change. Records are immutable and are
// only built through NewChange and NewRename.
type Record struct {
	kind        Kind
	name        string
	fullPath    string
	oldName     string
	oldFullPath string
}

// NewChange creates a Created, Deleted or Changed record.
// Renames must go through NewRename.
func NewChange(kind Kind, name, fullPath string) (Record, error) {
	if kind == Renamed {
		return Record{}, errors.InvalidArgument("renamed records must be created with NewRename")
	}
	if !kind.valid() {
		return Record{}, errors.InvalidArgumentf("unknown change kind %d", uint8(kind))
	}
	if name == "" {
		return Record{}, errors.InvalidArgument("name must not be empty")
	}
	if fullPath == "" {
		return Record{}, errors.InvalidArgument("full path must not be empty")
	}
	return Record{kind: kind, name: name, fullPath: fullPath}, nil
}

// NewRename creates a Renamed record. All four identifiers are required.
func NewRename(oldName, oldFullPath, name, fullPath string) (Record, error) {
	switch {
	case oldName == "":
		return Record{}, errors.InvalidArgument("old name must not be empty")
	case oldFullPath == "":
		return Record{}, errors.InvalidArgument("old full path must not be empty")
	case name == "":
		return Record{}, errors.InvalidArgument("name must not be empty")
	case fullPath == "":
		return Record{}, errors.InvalidArgument("full path must not be empty")
	}
	return Record{
		kind:        Renamed,
		name:        name,
		fullPath:    fullPath,
		oldName:     oldName,
		oldFullPath: oldFullPath,
	}, nil
}

// Kind is the kind of change.
func (r Record) Kind() Kind { return r.kind }

// Name is the entry path relative to the watched root, after the change.
func (r Record) Name() string { return r.name }

// FullPath is the absolute entry path after the change.
func (r Record) FullPath() string { return r.fullPath }

// OldName is the relative path before a rename. Empty for other kinds.
func (r Record) OldName() string { return r.oldName }

// OldFullPath is the absolute path before a rename. Empty for other kinds.
func (r Record) OldFullPath() string { return r.oldFullPath }

func (r Record) String() string {
	if r.kind == Renamed {
		return fmt.Sprintf("Renamed \"%s\" to \"%s\"", r.oldName, r.name)
	}
	return fmt.Sprintf("%s %s", r.kind, r.name)
}
