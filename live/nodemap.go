package live

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/proto"
)

// nodeMap tracks CDP node IDs to XPaths so a mutation event can be
// located in the page for the subtree rewrite.
type nodeMap struct {
	mu       sync.RWMutex
	paths    map[proto.DOMNodeID]string
	tags     map[proto.DOMNodeID]string
	parent   map[proto.DOMNodeID]proto.DOMNodeID
	children map[proto.DOMNodeID][]proto.DOMNodeID
}

func newNodeMap() *nodeMap {
	return &nodeMap{
		paths:    make(map[proto.DOMNodeID]string),
		tags:     make(map[proto.DOMNodeID]string),
		parent:   make(map[proto.DOMNodeID]proto.DOMNodeID),
		children: make(map[proto.DOMNodeID][]proto.DOMNodeID),
	}
}

// rebuild walks the full DOM tree returned by DOM.getDocument and
// replaces the map contents.
func (nm *nodeMap) rebuild(root *proto.DOMNode) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nm.paths = make(map[proto.DOMNodeID]string)
	nm.tags = make(map[proto.DOMNodeID]string)
	nm.parent = make(map[proto.DOMNodeID]proto.DOMNodeID)
	nm.children = make(map[proto.DOMNodeID][]proto.DOMNodeID)

	nm.walkNode(root, "")
}

func (nm *nodeMap) walkNode(node *proto.DOMNode, parentPath string) {
	if node == nil {
		return
	}

	xpath := nm.computeXPath(node, parentPath)
	nm.paths[node.NodeID] = xpath
	nm.tags[node.NodeID] = strings.ToLower(node.NodeName)

	for _, child := range node.Children {
		nm.parent[child.NodeID] = node.NodeID
		nm.children[node.NodeID] = append(nm.children[node.NodeID], child.NodeID)
		nm.walkNode(child, xpath)
	}
}

func (nm *nodeMap) computeXPath(node *proto.DOMNode, parentPath string) string {
	name := strings.ToLower(node.NodeName)

	switch node.NodeType {
	case 9: // Document
		return ""
	case 10: // DocumentType
		return parentPath
	case 3: // Text
		return parentPath + "/text()"
	case 8: // Comment
		return parentPath + "/comment()"
	case 1: // Element
	default:
		return parentPath + "/" + name
	}

	switch name {
	case "html":
		return "/html"
	case "head":
		return "/html/head"
	case "body":
		return "/html/body"
	}

	parentID, hasParent := nm.parent[node.NodeID]
	if !hasParent {
		return parentPath + "/" + name
	}

	// Sibling index among same-tag siblings. Only emitted when the tag is
	// ambiguous at this level.
	siblings := nm.children[parentID]
	idx := 1
	for _, sibID := range siblings {
		if sibID == node.NodeID {
			break
		}
		if nm.tags[sibID] == name {
			idx++
		}
	}

	total := 0
	for _, sibID := range siblings {
		if nm.tags[sibID] == name {
			total++
		}
	}

	if total > 1 {
		return fmt.Sprintf("%s/%s[%d]", parentPath, name, idx)
	}
	return parentPath + "/" + name
}

// xpath returns the cached XPath for a node ID.
func (nm *nodeMap) xpath(id proto.DOMNodeID) string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if p, ok := nm.paths[id]; ok {
		return p
	}
	return ""
}

// addNode registers a subtree inserted under parentID.
func (nm *nodeMap) addNode(parentID proto.DOMNodeID, node *proto.DOMNode) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	parentPath := nm.paths[parentID]
	nm.parent[node.NodeID] = parentID
	nm.children[parentID] = append(nm.children[parentID], node.NodeID)
	nm.walkNode(node, parentPath)
}

// removeNode drops a node and its subtree from the map.
func (nm *nodeMap) removeNode(nodeID proto.DOMNodeID) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.removeNodeLocked(nodeID)
}

func (nm *nodeMap) removeNodeLocked(nodeID proto.DOMNodeID) {
	for _, childID := range nm.children[nodeID] {
		nm.removeNodeLocked(childID)
	}
	if parentID, ok := nm.parent[nodeID]; ok {
		kids := nm.children[parentID]
		for i, id := range kids {
			if id == nodeID {
				nm.children[parentID] = append(kids[:i], kids[i+1:]...)
				break
			}
		}
	}
	delete(nm.paths, nodeID)
	delete(nm.tags, nodeID)
	delete(nm.parent, nodeID)
	delete(nm.children, nodeID)
}
