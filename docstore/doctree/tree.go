// Package doctree is the map-backed document tree shared by the memstore and jsonstore
// backends. It is not safe for concurrent use; callers serialize access.
package doctree

import (
	"sort"
	"strings"
	"time"

	"bitbucket.org/avalia/dashboard_backend/docstore"
)

type Record struct {
	Data      docstore.Data `json:"data"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type Tree struct {
	Documents map[string]*Record `json:"documents"`
}

func New() *Tree {
	return &Tree{Documents: map[string]*Record{}}
}

// Clone deep-copies the tree.
func (t *Tree) Clone() *Tree {
	out := New()
	for p, r := range t.Documents {
		out.Documents[p] = &Record{Data: docstore.Clone(r.Data), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
	}
	return out
}

func (t *Tree) Get(docPath string) *docstore.Snapshot {
	snap := &docstore.Snapshot{ID: docstore.ID(docPath), Path: docPath}
	r, ok := t.Documents[docPath]
	if !ok {
		return snap
	}
	snap.Exists = true
	snap.Data = docstore.Clone(r.Data)
	snap.CreatedAt = r.CreatedAt
	snap.UpdatedAt = r.UpdatedAt
	return snap
}

// Set writes normalized data at docPath.
func (t *Tree) Set(docPath string, data docstore.Data, merge bool, now time.Time) {
	r, ok := t.Documents[docPath]
	if !ok {
		t.Documents[docPath] = &Record{Data: docstore.Clone(data), CreatedAt: now, UpdatedAt: now}
		return
	}
	if merge {
		r.Data = docstore.MergeInto(r.Data, data)
	} else {
		r.Data = docstore.Clone(data)
	}
	r.UpdatedAt = now
}

func (t *Tree) Delete(docPath string) {
	delete(t.Documents, docPath)
}

// Query evaluates q, which must already be normalized.
func (t *Tree) Query(q docstore.Query) []*docstore.Snapshot {
	prefix := q.Collection + "/"
	var out []*docstore.Snapshot
	for p, r := range t.Documents {
		if !strings.HasPrefix(p, prefix) || strings.Contains(p[len(prefix):], "/") {
			continue
		}
		id := p[len(prefix):]
		if !docstore.Matches(id, r.Data, q.Filters) {
			continue
		}
		if q.OrderBy != "" && q.OrderBy != docstore.DocumentID {
			if _, ok := r.Data[q.OrderBy]; !ok {
				continue
			}
		}
		out = append(out, t.Get(p))
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := 0
		if q.OrderBy != "" && q.OrderBy != docstore.DocumentID {
			c = docstore.CompareValues(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
		}
		if c == 0 {
			c = strings.Compare(out[i].ID, out[j].ID)
		}
		if q.Direction == docstore.Desc {
			return c > 0
		}
		return c < 0
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// ListCollections returns the child collection ids under docPath. An empty docPath lists
// the root collections.
func (t *Tree) ListCollections(docPath string) []string {
	prefix := ""
	if docPath != "" {
		prefix = docPath + "/"
	}
	seen := map[string]struct{}{}
	for p := range t.Documents {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		i := strings.Index(rest, "/")
		if i <= 0 {
			continue
		}
		seen[rest[:i]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
