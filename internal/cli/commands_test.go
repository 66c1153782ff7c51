package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/invsync/internal/authority"
	"github.com/roach88/invsync/internal/inventory"
	"github.com/roach88/invsync/internal/store"
)

// authorityFixture is a live authority over a temp database. alice owns a
// weapon (1), a sticker (2) and a name tag (3).
type authorityFixture struct {
	dbPath string
	svc    *authority.Service
	url    string
}

func startAuthority(t *testing.T) *authorityFixture {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "authority.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rules := inventory.DefaultRules()
	svc := authority.NewService(st, rules)
	seed, err := inventory.New(rules,
		inventory.Item{DefID: 7, Kind: inventory.KindWeapon},
		inventory.Item{DefID: 4001, Kind: inventory.KindSticker},
		inventory.Item{DefID: 900, Kind: inventory.KindNametag},
	)
	require.NoError(t, err)
	_, err = svc.Seed(context.Background(), "alice", seed)
	require.NoError(t, err)

	srv := httptest.NewServer(authority.NewHandler(svc))
	t.Cleanup(srv.Close)
	return &authorityFixture{dbPath: dbPath, svc: svc, url: srv.URL}
}

func execute(t *testing.T, root *RootOptions, build func(*RootOptions) *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := build(root)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestSeedCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "seed.db")
	invPath := filepath.Join(t.TempDir(), "bob.json")
	require.NoError(t, os.WriteFile(invPath,
		[]byte(`{"items":[{"uid":1,"def_id":7,"kind":"weapon"},{"uid":4,"def_id":900,"kind":"nametag"}],"next_uid":5}`), 0o644))

	out, err := execute(t, &RootOptions{Format: "json"}, NewSeedCommand, "--db", dbPath, "--user", "bob", invPath)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   SeedResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, SeedResult{User: "bob", Items: 2, SyncedAt: 1}, resp.Data)

	out, err = execute(t, &RootOptions{Format: "text"}, NewSeedCommand, "--db", dbPath, "--user", "bob", invPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 2 items for bob (synced_at 2)")
}

func TestSeedCommandErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"items":[{"def_id":7,"kind":"weapon"}],"next_uid":1}`), 0o644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing file", []string{"--db", filepath.Join(dir, "a.db"), filepath.Join(dir, "nope.json")}, "failed to read inventory"},
		{"invalid inventory", []string{"--db", filepath.Join(dir, "b.db"), bad}, "invalid inventory"},
		{"missing db", []string{"--db", "", bad}, "--db is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, &RootOptions{Format: "text"}, NewSeedCommand, append(tt.args, "--user", "bob")...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSnapshotCommand(t *testing.T) {
	a := startAuthority(t)

	out, err := execute(t, &RootOptions{Format: "json"}, NewSnapshotCommand, "--server", a.url, "--user", "alice")
	require.NoError(t, err)

	var resp struct {
		Data SnapshotResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(1), resp.Data.SyncedAt)
	assert.Equal(t, 3, resp.Data.Items)
	assert.Contains(t, string(resp.Data.Inventory), `"next_uid":4`)

	out, err = execute(t, &RootOptions{Format: "text"}, NewSnapshotCommand, "--server", a.url, "--user", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "nobody: 0 items at synced_at 0")
}

func TestSnapshotCommandUnreachable(t *testing.T) {
	_, err := execute(t, &RootOptions{Format: "text"}, NewSnapshotCommand, "--server", "http://127.0.0.1:1", "--user", "alice")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestDispatchCommand(t *testing.T) {
	a := startAuthority(t)

	out, err := execute(t, &RootOptions{Format: "json"}, NewDispatchCommand,
		"RenameItem", "--server", a.url, "--user", "alice",
		"--args", `{"tool_uid":3,"target_uid":1,"name_tag":"Lucky"}`)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   DispatchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "idle", resp.Data.State)
	assert.Equal(t, int64(2), resp.Data.SyncedAt)
	assert.Equal(t, 2, resp.Data.Items)
	assert.Equal(t, []string{"sync-start", "sync-end"}, resp.Data.Events)

	inv, syncedAt, err := a.svc.Snapshot(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), syncedAt)
	weapon, ok := inv.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Lucky", weapon.NameTag)

	logOut, err := execute(t, &RootOptions{Format: "text"}, NewLogCommand, "--db", a.dbPath, "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, logOut, "RenameItem")
	assert.Contains(t, logOut, `"name_tag":"Lucky"`)
}

func TestDispatchCommandRejected(t *testing.T) {
	a := startAuthority(t)

	// The replica accepts longer name tags than the authority does.
	rulesPath := filepath.Join(t.TempDir(), "rules.cue")
	require.NoError(t, os.WriteFile(rulesPath, []byte("nametag_max_length: 64\n"), 0o644))
	long := strings.Repeat("x", 30)

	out, err := execute(t, &RootOptions{Format: "json"}, NewDispatchCommand,
		"RenameItem", "--server", a.url, "--user", "alice", "--rules", rulesPath,
		"--args", `{"tool_uid":3,"target_uid":1,"name_tag":"`+long+`"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "authority rejected the command")

	var resp struct {
		Status string         `json:"status"`
		Error  *CLIError      `json:"error"`
		Data   DispatchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeSync, resp.Error.Code)

	var details DispatchResult
	raw, err := json.Marshal(resp.Error.Details)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &details))
	// The optimistic rename was discarded by the resync.
	assert.Equal(t, "idle", details.State)
	assert.Equal(t, int64(1), details.SyncedAt)
	assert.Equal(t, 3, details.Items)
	assert.Equal(t, []string{"sync-start", "sync-error"}, details.Events)

	logOut, err := execute(t, &RootOptions{Format: "text"}, NewLogCommand, "--db", a.dbPath, "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, logOut, "No commands.")
}

func TestDispatchCommandPrecondition(t *testing.T) {
	a := startAuthority(t)

	_, err := execute(t, &RootOptions{Format: "text"}, NewDispatchCommand,
		"RemoveItem", "--server", a.url, "--user", "alice", "--args", `{"uid":99}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "command does not apply to the replica")
}

func TestDispatchCommandInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		action string
		args   string
		want   string
	}{
		{"unknown action", "Teleport", `{}`, "known actions"},
		{"not json", "RemoveItem", `{uid:1}`, "--args"},
		{"not an object", "RemoveItem", `[1]`, "JSON object"},
		{"missing arg", "RemoveItem", `{}`, "invalid args"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, &RootOptions{Format: "text"}, NewDispatchCommand,
				tt.action, "--user", "alice", "--args", tt.args)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLogCommandJSON(t *testing.T) {
	a := startAuthority(t)

	out, err := execute(t, &RootOptions{Format: "json"}, NewLogCommand, "--db", a.dbPath, "--user", "alice")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   []LogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Data)
}

func TestServeCommandStopsOnCancel(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "serve.db")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buf := &bytes.Buffer{}
	cmd := NewServeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--listen", "127.0.0.1:0"})

	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, buf.String(), "Listening on 127.0.0.1:")
	assert.FileExists(t, dbPath)
}

func TestServeCommandBadAddress(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "serve.db")

	cmd := NewServeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "--listen", "not-an-address"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
