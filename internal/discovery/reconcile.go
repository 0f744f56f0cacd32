package discovery

import (
	"github.com/nerrad567/vega-nmos-core/internal/metrics"
	"github.com/nerrad567/vega-nmos-core/internal/notify"
	"github.com/nerrad567/vega-nmos-core/internal/registry"
	"github.com/nerrad567/vega-nmos-core/internal/resource"
)

// Reconcile applies the changes of one grain to collection c in order and
// returns one update per applied change.
//
// Change handling:
//   - added: upsert; an existing id is overwritten with a warning
//   - removed: delete; an unknown id is a warning and no-op
//   - synced: upsert
//   - modified: upsert; an unknown id is appended with a warning
//
// Malformed entries are logged and skipped.
func Reconcile(store *resource.Store, c resource.Collection, g registry.Grain, log Logger) []notify.ResourceUpdate {
	if log == nil {
		log = noopLogger{}
	}

	for _, err := range g.Malformed {
		log.Warn("dropping malformed grain entry", "collection", c, "topic", g.Topic, "error", err)
		metrics.RecordGrainMalformed(string(c))
	}

	updates := make([]notify.ResourceUpdate, 0, len(g.Changes))
	for _, ch := range g.Changes {
		id := ch.ID()
		kind := ch.Type()
		update := notify.ResourceUpdate{Type: c, ID: id, ChangeType: string(kind)}

		switch kind {
		case registry.Added:
			rec := withID(ch.Post, id)
			if store.Upsert(c, rec) {
				log.Warn("added record already present, overwriting", "collection", c, "id", id)
			}
			update.Data = rec

		case registry.Removed:
			if !store.Remove(c, id) {
				log.Warn("removed record not found", "collection", c, "id", id)
			}

		case registry.Synced:
			rec := withID(ch.Post, id)
			if !store.Upsert(c, rec) {
				log.Warn("synced record was missing, appended", "collection", c, "id", id)
			}
			update.Data = rec

		case registry.Modified:
			rec := withID(ch.Post, id)
			if !store.Upsert(c, rec) {
				log.Warn("modified record was missing, appended", "collection", c, "id", id)
			}
			update.Data = rec
		}

		metrics.RecordGrainChange(string(c), string(kind))
		updates = append(updates, update)
	}
	return updates
}

// withID returns r carrying id, copying r only when its own id differs.
func withID(r resource.Resource, id string) resource.Resource {
	if r.ID() == id {
		return r
	}
	out := r.Clone()
	out["id"] = id
	return out
}
