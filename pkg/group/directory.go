package group

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Group is a named set of member identities. The creator is always a
// member and the initial admin.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Creator   string    `json:"creator"`
	Members   []string  `json:"members"`
	Admins    []string  `json:"admins"`
	CreatedAt time.Time `json:"created_at"`
}

// HasMember reports whether email belongs to the group
func (g *Group) HasMember(email string) bool {
	for _, m := range g.Members {
		if m == email {
			return true
		}
	}
	return false
}

// Directory tracks groups and each identity's memberships. Members are
// soft references: they need not exist in the presence registry, they
// simply never receive routed events until they do.
type Directory struct {
	mu          sync.RWMutex
	groups      map[string]*Group
	memberships map[string]map[string]struct{} // email -> group ids
}

// NewDirectory creates an empty group directory
func NewDirectory() *Directory {
	return &Directory{
		groups:      make(map[string]*Group),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Create allocates a new group. The member set is members plus the
// creator, deduplicated; the admin set starts as just the creator.
func (d *Directory) Create(name, creator string, members []string) *Group {
	seen := map[string]struct{}{creator: {}}
	all := []string{creator}
	for _, m := range members {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		all = append(all, m)
	}

	g := &Group{
		ID:        uuid.NewString(),
		Name:      name,
		Creator:   creator,
		Members:   all,
		Admins:    []string{creator},
		CreatedAt: time.Now(),
	}

	d.mu.Lock()
	d.groups[g.ID] = g
	for _, m := range all {
		if d.memberships[m] == nil {
			d.memberships[m] = make(map[string]struct{})
		}
		d.memberships[m][g.ID] = struct{}{}
	}
	d.mu.Unlock()

	return g
}

// Get returns the group by id
func (d *Directory) Get(id string) (*Group, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[id]
	return g, ok
}

// MembersOf returns the member set of a group, empty if unknown
func (d *Directory) MembersOf(id string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[id]
	if !ok {
		return nil
	}
	members := make([]string, len(g.Members))
	copy(members, g.Members)
	return members
}

// GroupsOf returns all groups the identity belongs to, sorted by creation
// time so listings are stable.
func (d *Directory) GroupsOf(email string) []*Group {
	d.mu.RLock()
	ids := d.memberships[email]
	groups := make([]*Group, 0, len(ids))
	for id := range ids {
		if g, ok := d.groups[id]; ok {
			groups = append(groups, g)
		}
	}
	d.mu.RUnlock()

	sort.Slice(groups, func(i, j int) bool { return groups[i].CreatedAt.Before(groups[j].CreatedAt) })
	return groups
}
