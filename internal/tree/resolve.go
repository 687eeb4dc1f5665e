package tree

import "rabbithole/internal/model"

// ResolveParent picks the parent for a newly observed article. "" means no
// parent (the node becomes a root candidate).
//
// Selections and in-article navigation branch from the article being read;
// session starts and jumps from the tree UI begin a new root. Anything else
// branches from wherever the user is.
func ResolveParent(ctx model.SourceContext, activeID string) string {
	switch ctx {
	case model.ContextTextSelection, model.ContextModalNavigation:
		return activeID
	case model.ContextSessionStart, model.ContextTreeNavigation:
		return ""
	default:
		return activeID
	}
}
