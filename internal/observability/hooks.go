package observability

import (
	"rabbithole/internal/model"
	"rabbithole/internal/tree"

	"go.uber.org/zap"
)

// SessionHooks logs and counts session activity, then calls next.
// m may be nil.
func SessionHooks(log *zap.Logger, m *Metrics, next tree.Hooks) tree.Hooks {
	if log == nil {
		log = zap.NewNop()
	}
	return tree.Hooks{
		OnChange: next.OnChange,
		OnNodeAdded: func(n model.TreeNode) {
			log.Debug("node added",
				zap.String("id", n.ID),
				zap.String("title", n.Title),
				zap.String("parent", n.Parent()))
			if m != nil {
				m.NodesCreated.Inc()
			}
			if next.OnNodeAdded != nil {
				next.OnNodeAdded(n)
			}
		},
		OnReactivated: func(n model.TreeNode) {
			log.Debug("node reactivated", zap.String("id", n.ID), zap.String("title", n.Title))
			if m != nil {
				m.Reactivations.Inc()
			}
			if next.OnReactivated != nil {
				next.OnReactivated(n)
			}
		},
		OnAutoSave: func(t model.SavedTree, created bool) {
			kind := "update"
			if created {
				kind = "create"
			}
			log.Info("tree auto-saved",
				zap.String("tree", t.ID),
				zap.String("name", t.Name),
				zap.Int("nodes", len(t.Nodes)),
				zap.String("kind", kind))
			if m != nil {
				m.AutoSaves.WithLabelValues(kind).Inc()
			}
			if next.OnAutoSave != nil {
				next.OnAutoSave(t, created)
			}
		},
		OnTreesChanged: next.OnTreesChanged,
		OnPersistError: func(key string, err error) {
			log.Warn("persist failed", zap.String("key", key), zap.Error(err))
			if m != nil {
				m.PersistFailures.WithLabelValues(key).Inc()
			}
			if next.OnPersistError != nil {
				next.OnPersistError(key, err)
			}
		},
		OnNavigateError: func(req model.NavigationRequest, err error) {
			log.Warn("navigation request failed", zap.String("url", req.URL), zap.Error(err))
			if m != nil {
				m.NavigateFailures.Inc()
			}
			if next.OnNavigateError != nil {
				next.OnNavigateError(req, err)
			}
		},
	}
}
