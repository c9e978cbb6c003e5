package figma

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/fjglira/qagen/internal/domain"
)

// DefaultMaxDepth bounds the text walk when no depth is configured.
const DefaultMaxDepth = 64

// CollectText walks a node tree depth-first and returns the characters of
// every TEXT node, one "- " prefixed line per text line. Subtrees deeper
// than maxDepth are ignored.
func CollectText(node gjson.Result, maxDepth int) []string {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	var lines []string
	walk(node, 0, maxDepth, &lines)
	return lines
}

func walk(node gjson.Result, depth, maxDepth int, lines *[]string) {
	if !node.IsObject() || depth > maxDepth {
		return
	}
	if domain.NodeKind(node.Get("type").String()) == domain.NodeText {
		for _, l := range strings.Split(node.Get("characters").String(), "\n") {
			if l = strings.TrimSpace(l); l != "" {
				*lines = append(*lines, "- "+l)
			}
		}
	}
	node.Get("children").ForEach(func(_, child gjson.Result) bool {
		walk(child, depth+1, maxDepth, lines)
		return true
	})
}
