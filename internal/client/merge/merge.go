// Package merge combines a remote snapshot with local records on load and
// reconnect.
//
// Records only present on one side are kept. For records present on both
// sides the strictly newer one wins, and the remote copy wins ties. A
// tombstone beats a live record regardless of timestamps, unless the live
// record clears the tombstone: it was modified after the deletion and
// carries a higher version.
package merge

import (
	"sort"

	"github.com/dmitrijs2005/shiftsync/internal/models"
)

// Table merges the records of one table. The result is ordered by id.
func Table(remote, local []models.Record) []models.Record {
	byID := make(map[string]models.Record, len(remote)+len(local))
	for _, r := range remote {
		byID[r.ID] = r
	}
	for _, l := range local {
		r, ok := byID[l.ID]
		if !ok {
			byID[l.ID] = l
			continue
		}
		byID[l.ID] = pick(r, l)
	}

	out := make([]models.Record, 0, len(byID))
	for _, rec := range byID {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All merges every table present on either side.
func All(remote, local models.Snapshot) models.Snapshot {
	out := make(models.Snapshot, len(models.AllTables))
	for t := range remote {
		out[t] = nil
	}
	for t := range local {
		out[t] = nil
	}
	for t := range out {
		out[t] = Table(remote[t], local[t])
	}
	return out
}

func pick(remote, local models.Record) models.Record {
	switch {
	case local.IsDeleted() && !remote.IsDeleted():
		if clears(remote, local) {
			return remote
		}
		return local
	case remote.IsDeleted() && !local.IsDeleted():
		if clears(local, remote) {
			return local
		}
		return remote
	}

	if local.LastModified.After(remote.LastModified) {
		return local
	}
	return remote
}

// clears reports whether live is a deliberate write on top of tombstone.
func clears(live, tombstone models.Record) bool {
	return live.LastModified.After(*tombstone.DeletedAt) && live.Version > tombstone.Version
}
