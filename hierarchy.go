package pdp

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/oarkflow/pdp/utils"
)

// Permission is an opaque capability identifier, conventionally
// "<resource>.<action>". Permissions are created by an administrator and
// never mutated.
type Permission struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Role bundles direct permissions and may declare parent roles for
// inheritance. Multiple parents are allowed; the graph restricted to the
// roles of one hierarchy must be acyclic for aggregation to be meaningful,
// but traversal tolerates cycles (see AllPermissions).
type Role struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions []string `json:"permissions" yaml:"permissions"`
	Parents     []string `json:"parents,omitempty" yaml:"parents,omitempty"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
}

// RoleTreeNode is the recursive explain structure for a role and its
// ancestry. A parent that revisits an ancestor is marked Circular instead
// of being expanded; a referenced-but-absent parent is marked Missing.
type RoleTreeNode struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	PermissionCount int             `json:"permission_count"`
	Circular        bool            `json:"circular,omitempty"`
	Missing         bool            `json:"missing,omitempty"`
	Children        []*RoleTreeNode `json:"children,omitempty"`
}

// Hierarchy is the in-memory role graph. All walks are visited-set guarded
// so malformed input (cycles, dangling parents) degrades to a diagnostic,
// never a hang or crash.
type Hierarchy struct {
	mu    sync.RWMutex
	roles map[string]*Role
}

func NewHierarchy() *Hierarchy {
	return &Hierarchy{roles: make(map[string]*Role)}
}

// AddRole inserts or overwrites a role node. No cycle check happens here;
// graphs are built incrementally and validated at query time.
func (h *Hierarchy) AddRole(role *Role) error {
	if role == nil || role.ID == "" {
		return &ConfigError{Msg: "role id is required"}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	dup := *role
	dup.Permissions = append([]string(nil), role.Permissions...)
	dup.Parents = append([]string(nil), role.Parents...)
	h.roles[role.ID] = &dup
	return nil
}

// RemoveRole deletes a role node. Dangling parent references left behind
// surface through Validate.
func (h *Hierarchy) RemoveRole(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.roles, id)
}

// GetRole returns a copy of the role, or nil when absent.
func (h *Hierarchy) GetRole(id string) *Role {
	h.mu.RLock()
	defer h.mu.RUnlock()
	role, ok := h.roles[id]
	if !ok {
		return nil
	}
	dup := *role
	dup.Permissions = append([]string(nil), role.Permissions...)
	dup.Parents = append([]string(nil), role.Parents...)
	return &dup
}

// AllPermissions walks the parent edges starting at roleID and unions each
// visited role's direct permissions. The walk is an iterative worklist with
// a visited set, so a cyclic graph terminates with a finite result; the
// cycle itself is surfaced by Validate, not here.
func (h *Hierarchy) AllPermissions(roleID string) map[string]struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	perms := make(map[string]struct{})
	visited := make(map[string]bool)
	queue := []string{roleID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		role, ok := h.roles[id]
		if !ok {
			continue
		}
		for _, p := range role.Permissions {
			perms[p] = struct{}{}
		}
		queue = append(queue, role.Parents...)
	}
	return perms
}

// RoleHasPermission reports whether the aggregated permission set of a role
// satisfies the wanted permission, honoring trailing-wildcard patterns in
// the granted ids ("orders.*" grants "orders.delete").
func (h *Hierarchy) RoleHasPermission(roleID, wanted string) bool {
	for granted := range h.AllPermissions(roleID) {
		if utils.MatchPermission(granted, wanted) {
			return true
		}
	}
	return false
}

// RoleTree produces the explain tree rooted at roleID.
func (h *Hierarchy) RoleTree(roleID string) *RoleTreeNode {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.buildTree(roleID, map[string]bool{})
}

func (h *Hierarchy) buildTree(id string, onPath map[string]bool) *RoleTreeNode {
	role, ok := h.roles[id]
	if !ok {
		return &RoleTreeNode{ID: id, Missing: true}
	}
	if onPath[id] {
		return &RoleTreeNode{ID: id, Name: role.Name, Circular: true}
	}
	onPath[id] = true
	node := &RoleTreeNode{ID: id, Name: role.Name, PermissionCount: len(role.Permissions)}
	for _, parent := range role.Parents {
		node.Children = append(node.Children, h.buildTree(parent, onPath))
	}
	delete(onPath, id)
	return node
}

// Validate scans the whole graph and reports every cycle and every dangling
// parent reference. It never mutates state; it is a periodic administrative
// health check, not a gate on evaluation.
func (h *Hierarchy) Validate() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	issues := make([]string, 0)
	ids := make([]string, 0, len(h.roles))
	for id := range h.roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		for _, parent := range h.roles[id].Parents {
			if _, ok := h.roles[parent]; !ok {
				issues = append(issues, fmt.Sprintf("role %s references missing parent %s", id, parent))
			}
		}
	}

	// DFS with an explicit stack; a back edge onto the current path is a
	// cycle. Each cycle is reported once, from its smallest entry id.
	reported := make(map[string]bool)
	for _, start := range ids {
		if cycle := h.findCycle(start); len(cycle) > 0 {
			key := strings.Join(cycle, "->")
			if !reported[key] {
				reported[key] = true
				issues = append(issues, fmt.Sprintf("role cycle detected: %s", key))
			}
		}
	}
	return issues
}

func (h *Hierarchy) findCycle(start string) []string {
	type frame struct {
		id   string
		next int
	}
	onPath := map[string]int{start: 0}
	stack := []frame{{id: start}}
	path := []string{start}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		role, ok := h.roles[top.id]
		if !ok || top.next >= len(role.Parents) {
			delete(onPath, top.id)
			stack = stack[:len(stack)-1]
			path = path[:len(path)-1]
			continue
		}
		parent := role.Parents[top.next]
		top.next++
		if at, seen := onPath[parent]; seen {
			cycle := append([]string{}, path[at:]...)
			return normalizeCycle(append(cycle, parent))
		}
		if _, exists := h.roles[parent]; exists {
			onPath[parent] = len(path)
			stack = append(stack, frame{id: parent})
			path = append(path, parent)
		}
	}
	return nil
}

// normalizeCycle rotates a cycle so it starts at its smallest id, letting
// identical cycles found from different entry points deduplicate.
func normalizeCycle(cycle []string) []string {
	if len(cycle) < 2 {
		return cycle
	}
	body := cycle[:len(cycle)-1]
	min := 0
	for i, id := range body {
		if id < body[min] {
			min = i
		}
	}
	rotated := make([]string, 0, len(cycle))
	for i := 0; i < len(body); i++ {
		rotated = append(rotated, body[(min+i)%len(body)])
	}
	return append(rotated, rotated[0])
}
