package core

import (
	"strings"

	"pkt.systems/hostbridge/schema"
)

// SceneNode is one object in the reference scene.
type SceneNode struct {
	Name     string
	Position schema.Vector3
	parent   *SceneNode
	children []*SceneNode
}

// Parent returns the parent node, nil for roots.
func (n *SceneNode) Parent() *SceneNode { return n.parent }

// Children returns a copy of the child list.
func (n *SceneNode) Children() []*SceneNode {
	return append([]*SceneNode(nil), n.children...)
}

// Scene is an in-memory scene graph standing in for host state.
// It is not safe for concurrent use; only the host thread touches it.
type Scene struct {
	roots []*SceneNode
}

// NewScene returns an empty scene.
func NewScene() *Scene {
	return &Scene{}
}

// Create adds a node. An empty parent creates a root. Duplicate names are allowed.
func (s *Scene) Create(name string, position schema.Vector3, parent string) (*SceneNode, error) {
	node := &SceneNode{Name: name, Position: position}
	if parent == "" {
		s.roots = append(s.roots, node)
		return node, nil
	}
	p := s.Find(parent)
	if p == nil {
		return nil, objectNotFound(parent)
	}
	node.parent = p
	p.children = append(p.children, node)
	return node, nil
}

// Find returns the first node named name in depth-first order.
func (s *Scene) Find(name string) *SceneNode {
	var found *SceneNode
	s.walk(func(n *SceneNode, _ int) bool {
		if n.Name == name {
			found = n
			return false
		}
		return true
	})
	return found
}

// Delete removes the first node named name together with its children.
func (s *Scene) Delete(name string) bool {
	node := s.Find(name)
	if node == nil {
		return false
	}
	if node.parent == nil {
		s.roots = removeNode(s.roots, node)
	} else {
		node.parent.children = removeNode(node.parent.children, node)
		node.parent = nil
	}
	return true
}

// Len returns the number of nodes.
func (s *Scene) Len() int {
	count := 0
	s.walk(func(*SceneNode, int) bool {
		count++
		return true
	})
	return count
}

// Hierarchy renders the scene as one line per node, indented two spaces per depth.
// An empty scene renders as "".
func (s *Scene) Hierarchy() string {
	var b strings.Builder
	s.walk(func(n *SceneNode, depth int) bool {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Name)
		return true
	})
	return b.String()
}

func (s *Scene) walk(fn func(n *SceneNode, depth int) bool) {
	var visit func(nodes []*SceneNode, depth int) bool
	visit = func(nodes []*SceneNode, depth int) bool {
		for _, n := range nodes {
			if !fn(n, depth) {
				return false
			}
			if !visit(n.children, depth+1) {
				return false
			}
		}
		return true
	}
	visit(s.roots, 0)
}

func removeNode(nodes []*SceneNode, target *SceneNode) []*SceneNode {
	for i, n := range nodes {
		if n == target {
			return append(nodes[:i:i], nodes[i+1:]...)
		}
	}
	return nodes
}

type objectNotFound string

func (e objectNotFound) Error() string {
	return "Object '" + string(e) + "' not found."
}
