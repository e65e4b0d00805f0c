package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "dfwatch/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: got (%v, %v), want (nil, nil)", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("file driver without path should fail")
	}
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "file", Path: filepath.Join(dir, "dfwatch.db")},
		{Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "dfwatch.db"), BusyTimeout: time.Second},
	} {
		st, err := Open(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("open %s: %v", cfg.Driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[cfg.Driver] = st
	}
	return out
}

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range testStores(t) {
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 5; i++ {
			err := st.AppendAudit(ctx, AuditEntry{
				At:      base.Add(time.Duration(i) * time.Minute),
				Source:  "changelog",
				Action:  "announce",
				Target:  "-100" + strings.Repeat("1", i+1),
				ChatID:  -100,
				OK:      i,
				Summary: "batch",
			})
			if err != nil {
				t.Fatalf("%s: AppendAudit: %v", name, err)
			}
		}
		got, err := st.Recent(ctx, 3)
		if err != nil {
			t.Fatalf("%s: Recent: %v", name, err)
		}
		if len(got) != 3 {
			t.Fatalf("%s: Recent returned %d entries", name, len(got))
		}
		if got[0].OK != 4 || got[2].OK != 2 {
			t.Fatalf("%s: order = %d..%d, want newest first", name, got[0].OK, got[2].OK)
		}
		if !got[0].At.Equal(base.Add(4*time.Minute)) || got[0].Summary != "batch" || got[0].Error != "" {
			t.Fatalf("%s: entry = %+v", name, got[0])
		}
	}
}

func TestFileStoreLayoutAndTornLine(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "state.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.AppendAudit(ctx, AuditEntry{Source: "devlog", Action: "announce", OK: 1}); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	path := filepath.Join(dir, "state.audit.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("audit file missing: %v", err)
	}
	_, _ = f.WriteString(`{"source":"chang`)
	_ = f.Close()

	got, err := st.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].Source != "devlog" {
		t.Fatalf("Recent = %+v", got)
	}
}
