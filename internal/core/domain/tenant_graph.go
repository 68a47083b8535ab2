package domain

import "errors"

// ErrUnknownTenant is returned by graph walks that reach an id missing from the arena.
var ErrUnknownTenant = errors.New("tenant not in graph")

// ErrCorruptHierarchy is returned when a walk revisits a node or exceeds MaxHierarchyDepth.
var ErrCorruptHierarchy = errors.New("tenant hierarchy corrupt")

// TenantGraph is an arena of tenants keyed by id.
type TenantGraph struct {
	nodes    map[string]Tenant
	children map[string][]string
}

// NewTenantGraph indexes the given tenants. Later duplicates win.
func NewTenantGraph(tenants []Tenant) *TenantGraph {
	g := &TenantGraph{
		nodes:    make(map[string]Tenant, len(tenants)),
		children: make(map[string][]string),
	}
	for _, t := range tenants {
		g.nodes[t.TenantID] = t
	}
	for id, t := range g.nodes {
		if !t.IsRoot() {
			g.children[*t.ParentID] = append(g.children[*t.ParentID], id)
		}
	}
	return g
}

// Get returns the tenant with id.
func (g *TenantGraph) Get(id string) (Tenant, bool) {
	t, ok := g.nodes[id]
	return t, ok
}

// Ancestors returns the parent chain of id, nearest first, excluding id itself.
func (g *TenantGraph) Ancestors(id string) ([]string, error) {
	node, ok := g.nodes[id]
	if !ok {
		return nil, ErrUnknownTenant
	}
	visited := map[string]struct{}{id: {}}
	var chain []string
	for depth := 0; !node.IsRoot(); depth++ {
		if depth >= MaxHierarchyDepth {
			return nil, ErrCorruptHierarchy
		}
		parentID := *node.ParentID
		if _, seen := visited[parentID]; seen {
			return nil, ErrCorruptHierarchy
		}
		visited[parentID] = struct{}{}
		chain = append(chain, parentID)
		parent, ok := g.nodes[parentID]
		if !ok {
			// A dangling parent pointer ends the chain as far as access is concerned.
			return chain, nil
		}
		node = parent
	}
	return chain, nil
}

// IsAncestor reports whether ancestorID appears in id's parent chain.
func (g *TenantGraph) IsAncestor(ancestorID, id string) (bool, error) {
	chain, err := g.Ancestors(id)
	if err != nil {
		return false, err
	}
	for _, a := range chain {
		if a == ancestorID {
			return true, nil
		}
	}
	return false, nil
}

// Descendants returns id and every tenant below it, breadth first.
func (g *TenantGraph) Descendants(id string) ([]string, error) {
	if _, ok := g.nodes[id]; !ok {
		return nil, ErrUnknownTenant
	}
	out := []string{id}
	seen := map[string]struct{}{id: {}}
	frontier := []string{id}
	for depth := 0; len(frontier) > 0; depth++ {
		if depth > MaxHierarchyDepth {
			return nil, ErrCorruptHierarchy
		}
		var next []string
		for _, parent := range frontier {
			for _, child := range g.children[parent] {
				if _, dup := seen[child]; dup {
					return nil, ErrCorruptHierarchy
				}
				seen[child] = struct{}{}
				out = append(out, child)
				next = append(next, child)
			}
		}
		frontier = next
	}
	return out, nil
}

// IDs returns every tenant id in the arena.
func (g *TenantGraph) IDs() []string {
	out := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	return out
}
