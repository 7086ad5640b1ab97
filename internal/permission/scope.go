package permission

import (
	"fmt"

	"github.com/frahmantamala/resorption-bidonvilles/internal/core/query"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
)

// Subject is whoever the scope is computed for.
type Subject interface {
	SubjectID() int64
	Location() *geo.Location
	PermissionSet() Set
}

type ScopeKind int

const (
	ScopeDenied ScopeKind = iota
	// ScopeEmpty is granted but pinned to no territory: sees nothing, is not an error.
	ScopeEmpty
	ScopeUnrestricted
	ScopeGeographic
	ScopeOwner
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeDenied:
		return "denied"
	case ScopeEmpty:
		return "empty"
	case ScopeUnrestricted:
		return "unrestricted"
	case ScopeGeographic:
		return "geographic"
	case ScopeOwner:
		return "owner"
	default:
		return "unknown"
	}
}

type Scope struct {
	Kind       ScopeKind
	Permission Permission
	Level      geo.Level
	Location   *geo.Location
	OwnerID    int64
}

func (s Scope) Denied() bool {
	return s.Kind == ScopeDenied
}

// Visible reports whether the scope can match any record at all.
func (s Scope) Visible() bool {
	return s.Kind != ScopeDenied && s.Kind != ScopeEmpty
}

func ScopeFor(subject Subject, entity Entity, feature Feature) Scope {
	perm, ok := subject.PermissionSet().Get(entity, feature)
	if !ok || !perm.Allowed {
		return Scope{Kind: ScopeDenied}
	}

	switch perm.GeographicLevel {
	case LevelNation:
		return Scope{Kind: ScopeUnrestricted, Permission: perm}
	case LevelLocal:
		loc := subject.Location()
		if loc == nil {
			return Scope{Kind: ScopeEmpty, Permission: perm}
		}
		if loc.Type == geo.LevelNation {
			return Scope{Kind: ScopeUnrestricted, Permission: perm}
		}
		if loc.AreaAt(loc.Type) == nil {
			return Scope{Kind: ScopeEmpty, Permission: perm}
		}
		return Scope{Kind: ScopeGeographic, Permission: perm, Level: loc.Type, Location: loc}
	case LevelOwn:
		return Scope{Kind: ScopeOwner, Permission: perm, OwnerID: subject.SubjectID()}
	default:
		return Scope{Kind: ScopeDenied}
	}
}

// NationScope is used by queries that are nation-wide by construction. It only checks
// the allowed flag and never reads the subject's location.
func NationScope(subject Subject, entity Entity, feature Feature) Scope {
	perm, ok := subject.PermissionSet().Get(entity, feature)
	if !ok || !perm.Allowed {
		return Scope{Kind: ScopeDenied}
	}
	return Scope{Kind: ScopeUnrestricted, Permission: perm}
}

// Columns tells a store where each geographic level lives. Owner is a complete
// predicate with a single `?` bound to the subject id.
type Columns struct {
	Levels map[geo.Level]string
	Owner  string
}

// Clause renders the scope for a store. A level without a column falls back to the
// closest coarser level the store knows about.
func (s Scope) Clause(cols Columns) (query.Clause, error) {
	switch s.Kind {
	case ScopeDenied, ScopeEmpty:
		return query.Nothing, nil
	case ScopeUnrestricted:
		return query.Clause{}, nil
	case ScopeGeographic:
		for level := s.Level; level != geo.LevelNation; {
			if column, ok := cols.Levels[level]; ok {
				if area := s.Location.AreaAt(level); area != nil {
					return query.Eq(column, area.Code), nil
				}
			}
			parent, ok := level.Parent()
			if !ok {
				break
			}
			level = parent
		}
		return query.Clause{}, fmt.Errorf("no column to scope level %s", s.Level)
	case ScopeOwner:
		if cols.Owner == "" {
			return query.Clause{}, fmt.Errorf("no owner predicate for scope")
		}
		return query.Clause{SQL: cols.Owner, Args: []any{s.OwnerID}}, nil
	default:
		return query.Clause{}, fmt.Errorf("unhandled scope kind %s", s.Kind)
	}
}

// Allows checks one loaded record against the scope. A record located more coarsely
// than the scope level is compared at its own level, as Clause does for stores
// without a finer column.
func (s Scope) Allows(location *geo.Location, ownerIDs ...int64) bool {
	switch s.Kind {
	case ScopeUnrestricted:
		return true
	case ScopeGeographic:
		if location == nil {
			return false
		}
		level := s.Level
		for !level.Contains(location.Type) {
			parent, ok := level.Parent()
			if !ok {
				return false
			}
			level = parent
		}
		want := s.Location.AreaAt(level)
		got := location.AreaAt(level)
		return want != nil && got != nil && want.Code == got.Code
	case ScopeOwner:
		for _, id := range ownerIDs {
			if id == s.OwnerID {
				return true
			}
		}
		return false
	default:
		return false
	}
}
