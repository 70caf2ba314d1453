package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/shiftsync/internal/client/integrity"
	"github.com/dmitrijs2005/shiftsync/internal/client/statusws"
	"github.com/dmitrijs2005/shiftsync/internal/client/syncer"
	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

// fakeDaemon serves the subset of the status API the commands use.
type fakeDaemon struct {
	mu      sync.Mutex
	records map[string]models.Record
	status  syncer.Status
	synced  int
}

func newFakeDaemon(t *testing.T) (*fakeDaemon, *httptest.Server) {
	t.Helper()
	d := &fakeDaemon{
		records: map[string]models.Record{},
		status:  syncer.Status{Online: true, RemoteConfigured: true, Phase: syncer.PhaseConnected},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()
		reply(w, http.StatusOK, d.status)
	})
	mux.HandleFunc("POST /sync", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.synced++
		d.mu.Unlock()
		reply(w, http.StatusOK, syncer.DrainResult{Attempted: 3, Succeeded: 2, Failed: 1})
	})
	mux.HandleFunc("POST /sync/force", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusServiceUnavailable, statusws.ErrorResponse{Error: "offline"})
	})
	mux.HandleFunc("POST /sync/auto", func(w http.ResponseWriter, r *http.Request) {
		var req statusws.AutoSyncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			reply(w, http.StatusBadRequest, statusws.ErrorResponse{Error: "bad body"})
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		d.status.AutoSync = *req.Enabled
		reply(w, http.StatusOK, d.status)
	})
	mux.HandleFunc("POST /integrity/check", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, integrity.Report{Checked: 4, Mismatched: 1, Healed: 1})
	})
	mux.HandleFunc("GET /records/{table}", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()
		out := []models.Record{}
		for _, rec := range d.records {
			if string(rec.Table) == r.PathValue("table") && !rec.IsDeleted() {
				out = append(out, rec)
			}
		}
		reply(w, http.StatusOK, out)
	})
	mux.HandleFunc("PUT /records/{table}/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req statusws.PutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			reply(w, http.StatusBadRequest, statusws.ErrorResponse{Error: err.Error()})
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		rec := models.Record{
			ID:           r.PathValue("id"),
			Table:        models.Table(r.PathValue("table")),
			Fields:       req.Fields,
			LastModified: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			DeviceID:     "dev-1",
		}
		rec.Version = d.records[rec.Key()].Version + 1
		d.records[rec.Key()] = rec
		reply(w, http.StatusOK, rec)
	})
	mux.HandleFunc("DELETE /records/{table}/{id}", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()
		key := models.RecordKey(models.Table(r.PathValue("table")), r.PathValue("id"))
		rec, ok := d.records[key]
		if !ok {
			reply(w, http.StatusNotFound, statusws.ErrorResponse{Error: "not found"})
			return
		}
		now := time.Now()
		rec.DeletedAt = &now
		rec.Version++
		d.records[key] = rec
		reply(w, http.StatusOK, rec)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return d, srv
}

func reply(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func execute(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	cmd := RootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--status-addr", srv.URL))
	err := cmd.Execute()
	return out.String(), err
}

func stubTerminal(t *testing.T, tty bool) {
	t.Helper()
	orig := isTerminal
	isTerminal = func(int) bool { return tty }
	t.Cleanup(func() { isTerminal = orig })
}

func TestParseFields(t *testing.T) {
	f, err := parseFields([]string{`title=Replace belt`, "done=false", "qty=4", `note="42"`, "tags=[1,2]", "empty="})
	require.NoError(t, err)
	assert.Equal(t, "Replace belt", f["title"])
	assert.Equal(t, false, f["done"])
	assert.Equal(t, float64(4), f["qty"])
	assert.Equal(t, "42", f["note"])
	assert.Equal(t, []any{float64(1), float64(2)}, f["tags"])
	assert.Equal(t, "", f["empty"])

	f, err = parseFields([]string{`{"name":"bearing","qty":4}`})
	require.NoError(t, err)
	assert.Equal(t, models.Fields{"name": "bearing", "qty": float64(4)}, f)

	_, err = parseFields(nil)
	assert.Error(t, err)
	_, err = parseFields([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseFields([]string{"=x"})
	assert.Error(t, err)
	_, err = parseFields([]string{`{"broken"`})
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	table, id, err := parseKey("parts", "p1")
	require.NoError(t, err)
	assert.Equal(t, models.TableParts, table)
	assert.Equal(t, "p1", id)

	_, _, err = parseKey("gizmos", "p1")
	assert.ErrorIs(t, err, common.ErrUnknownTable)
	_, _, err = parseKey("parts", "")
	assert.Error(t, err)
}

func TestPutListDelete(t *testing.T) {
	d, srv := newFakeDaemon(t)
	stubTerminal(t, false)

	out, err := execute(t, srv, "put", "parts", "p1", "name=bearing", "qty=4")
	require.NoError(t, err)
	assert.Contains(t, out, "saved parts:p1 (version 1)")

	out, err = execute(t, srv, "list", "parts")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var rec models.Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "p1", rec.ID)
	assert.Equal(t, models.Fields{"name": "bearing", "qty": float64(4)}, rec.Fields)

	out, err = execute(t, srv, "delete", "parts", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted parts:p1 (version 2)")

	d.mu.Lock()
	assert.True(t, d.records["parts:p1"].IsDeleted())
	d.mu.Unlock()

	out, err = execute(t, srv, "list", "parts")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))
}

func TestList_TableOnTerminal(t *testing.T) {
	_, srv := newFakeDaemon(t)
	stubTerminal(t, true)

	out, err := execute(t, srv, "list", "tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "No records.")

	_, err = execute(t, srv, "put", "tasks", "t1", "title=Oil")
	require.NoError(t, err)

	out, err = execute(t, srv, "list", "tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "t1")
	assert.Contains(t, out, "dev-1")
	assert.Contains(t, out, `{"title":"Oil"}`)
}

func TestCommands_RejectUnknownTable(t *testing.T) {
	_, srv := newFakeDaemon(t)

	_, err := execute(t, srv, "list", "gizmos")
	assert.ErrorIs(t, err, common.ErrUnknownTable)
	_, err = execute(t, srv, "put", "gizmos", "g1", "a=1")
	assert.ErrorIs(t, err, common.ErrUnknownTable)
}

func TestDelete_Missing(t *testing.T) {
	_, srv := newFakeDaemon(t)

	_, err := execute(t, srv, "delete", "parts", "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStatus(t *testing.T) {
	d, srv := newFakeDaemon(t)
	d.status.QueueSize = 2
	d.status.Degraded = true
	d.status.DegradedReason = "disk full"

	out, err := execute(t, srv, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Phase:      connected")
	assert.Contains(t, out, "Queued:     2")
	assert.Contains(t, out, "DEGRADED disk full")

	out, err = execute(t, srv, "status", "--json")
	require.NoError(t, err)
	var s syncer.Status
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 2, s.QueueSize)
}

func TestSyncAndCheck(t *testing.T) {
	d, srv := newFakeDaemon(t)

	out, err := execute(t, srv, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Sent 2 of 3 queued operations")
	assert.Contains(t, out, "failed: 1 will be retried")
	d.mu.Lock()
	assert.Equal(t, 1, d.synced)
	d.mu.Unlock()

	out, err = execute(t, srv, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Integrity MISMATCH: checked 4, mismatched 1, healed 1")
}

func TestAutoSync(t *testing.T) {
	d, srv := newFakeDaemon(t)

	out, err := execute(t, srv, "auto-sync", "on")
	require.NoError(t, err)
	assert.Contains(t, out, "Auto sync:  true")

	_, err = execute(t, srv, "auto-sync", "off")
	require.NoError(t, err)
	d.mu.Lock()
	assert.False(t, d.status.AutoSync)
	d.mu.Unlock()

	_, err = execute(t, srv, "auto-sync", "maybe")
	assert.ErrorContains(t, err, "expected on or off")
}

func TestForceSync_Offline(t *testing.T) {
	_, srv := newFakeDaemon(t)

	_, err := execute(t, srv, "force-sync")
	assert.ErrorIs(t, err, syncer.ErrOffline)
}

func TestDaemonUnreachable(t *testing.T) {
	_, srv := newFakeDaemon(t)
	srv.Close()

	_, err := execute(t, srv, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon unreachable")
}

func TestRun_InvalidConfig(t *testing.T) {
	_, srv := newFakeDaemon(t)

	_, err := execute(t, srv, "run", "--remote", "carrier-pigeon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown remote")
}
