package engine

import (
	"net/url"
	"strings"
)

const (
	NodeTypeWebhook     = "n8n-nodes-base.webhook"
	NodeTypeChatTrigger = "@n8n/n8n-nodes-langchain.chatTrigger"
)

// triggerResolvers maps a node type to the function that reads its inbound path.
var triggerResolvers = map[string]func(Node) string{
	NodeTypeWebhook: func(n Node) string {
		if path, ok := n.Parameters["path"].(string); ok && strings.Trim(path, "/ ") != "" {
			return path
		}

		return n.WebhookID
	},
	NodeTypeChatTrigger: func(n Node) string {
		if n.WebhookID == "" {
			return ""
		}

		return n.WebhookID + "/chat"
	},
}

// IsTrigger reports whether nodes of this type expose an inbound path.
func IsTrigger(nodeType string) bool {
	_, ok := triggerResolvers[nodeType]

	return ok
}

// FindTriggerPath scans the node list in order and returns the path of the
// first enabled trigger node that has one.
func FindTriggerPath(nodes []Node) (string, bool) {
	for _, node := range nodes {
		if node.Disabled {
			continue
		}

		resolve, ok := triggerResolvers[node.Type]
		if !ok {
			continue
		}

		if path := resolve(node); path != "" {
			return path, true
		}
	}

	return "", false
}

// CleanTriggerPath trims surrounding slashes and escapes every segment.
// Empty paths and dot segments are rejected.
func CleanTriggerPath(path string) (string, error) {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return "", ErrInvalidPath
	}

	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if segment == "" || segment == "." || segment == ".." {
			return "", ErrInvalidPath
		}

		segments[i] = url.PathEscape(segment)
	}

	return strings.Join(segments, "/"), nil
}
