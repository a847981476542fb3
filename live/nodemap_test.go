package live

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func elem(id int, name string, children ...*proto.DOMNode) *proto.DOMNode {
	return &proto.DOMNode{
		NodeID:   proto.DOMNodeID(id),
		NodeType: 1,
		NodeName: name,
		Children: children,
	}
}

func textNode(id int, value string) *proto.DOMNode {
	return &proto.DOMNode{
		NodeID:    proto.DOMNodeID(id),
		NodeType:  3,
		NodeName:  "#text",
		NodeValue: value,
	}
}

func testDoc() *proto.DOMNode {
	return &proto.DOMNode{
		NodeID:   1,
		NodeType: 9,
		NodeName: "#document",
		Children: []*proto.DOMNode{
			elem(2, "HTML",
				elem(3, "HEAD"),
				elem(4, "BODY",
					elem(5, "DIV"),
					elem(6, "DIV"),
					elem(7, "DIV"),
					elem(8, "P", textNode(9, "hello")),
				),
			),
		},
	}
}

func TestNodeMapRebuild(t *testing.T) {
	nm := newNodeMap()
	nm.rebuild(testDoc())

	cases := []struct {
		id   int
		want string
	}{
		{2, "/html"},
		{3, "/html/head"},
		{4, "/html/body"},
		{7, "/html/body/div[3]"},
		{8, "/html/body/p"},
		{9, "/html/body/p/text()"},
	}
	for _, tc := range cases {
		if got := nm.xpath(proto.DOMNodeID(tc.id)); got != tc.want {
			t.Errorf("xpath(%d) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestNodeMapUnknownNode(t *testing.T) {
	nm := newNodeMap()
	nm.rebuild(testDoc())

	if got := nm.xpath(99); got != "" {
		t.Errorf("xpath(99) = %q, want empty", got)
	}
}

func TestNodeMapAddNode(t *testing.T) {
	nm := newNodeMap()
	nm.rebuild(testDoc())

	// A fourth div appended to body gets an unambiguous sibling index.
	nm.addNode(4, elem(10, "DIV", textNode(11, "$25.00")))

	if got := nm.xpath(10); got != "/html/body/div[4]" {
		t.Errorf("xpath(10) = %q, want /html/body/div[4]", got)
	}
	if got := nm.xpath(11); got != "/html/body/div[4]/text()" {
		t.Errorf("xpath(11) = %q, want /html/body/div[4]/text()", got)
	}
}

func TestNodeMapRemoveNode(t *testing.T) {
	nm := newNodeMap()
	nm.rebuild(testDoc())

	nm.removeNode(8)

	if got := nm.xpath(8); got != "" {
		t.Errorf("xpath(8) after remove = %q, want empty", got)
	}
	if got := nm.xpath(9); got != "" {
		t.Errorf("child xpath(9) after remove = %q, want empty", got)
	}

	// Body no longer lists the removed node.
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	for _, id := range nm.children[4] {
		if id == 8 {
			t.Error("removed node still listed under body")
		}
	}
}

func TestEngineWatchBeforeStart(t *testing.T) {
	e := NewEngine(nil, Config{})
	if err := e.Watch(t.Context(), "https://example.com"); err == nil {
		t.Fatal("Watch before Start should fail")
	}
}
