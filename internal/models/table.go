// Package models defines the records synchronized between a dashboard
// device and the remote store, and the bookkeeping types around them.
package models

import (
	"fmt"

	"github.com/dmitrijs2005/shiftsync/internal/common"
)

// Table tags the entity type of a record.
type Table string

const (
	TableShifts    Table = "shifts"
	TableWorkers   Table = "workers"
	TableParts     Table = "parts"
	TableTasks     Table = "tasks"
	TableTaskNotes Table = "task_notes"
	TableTimeLogs  Table = "time_logs"
)

// AllTables lists every synced table in a stable order.
var AllTables = []Table{
	TableShifts,
	TableWorkers,
	TableParts,
	TableTasks,
	TableTaskNotes,
	TableTimeLogs,
}

func (t Table) Valid() bool {
	for _, known := range AllTables {
		if t == known {
			return true
		}
	}
	return false
}

func (t Table) String() string { return string(t) }

// ParseTable validates s against the synced entity set.
func ParseTable(s string) (Table, error) {
	t := Table(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownTable, s)
	}
	return t, nil
}
