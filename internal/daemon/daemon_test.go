package daemon_test

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"beatline/internal/app"
	"beatline/internal/config"
	"beatline/internal/daemon"
	"beatline/internal/logging"
	"beatline/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *app.Components) {
	t.Helper()
	comps, err := app.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("app.Open: %v", err)
	}
	t.Cleanup(func() { _ = comps.Close() })

	d, err := daemon.New(cfg, comps, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, comps
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Status().Running {
		t.Fatal("expected daemon to report running")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newDaemon(t, cfg)
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second, err := daemon.New(cfg, &app.Components{}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func TestDaemonImportsDroppedArchives(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Import.RemoveProcessed = true
	d, comps := newDaemon(t, cfg)

	// One archive exists before start, the other is dropped while running.
	early := testsupport.WriteOsz(t, cfg.Paths.ImportDir, "early.osz", map[string]string{
		"a.osu": testsupport.OsuFile(testsupport.OsuOptions{Title: "Early", BeatLength: 400, HitTimes: []float64{0, 400}}),
	})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	late := testsupport.WriteOsz(t, cfg.Paths.ImportDir, "late.osz", map[string]string{
		"b.osu": testsupport.OsuFile(testsupport.OsuOptions{Title: "Late", HitTimes: []float64{100}}),
	})

	deadline := time.Now().Add(10 * time.Second)
	for {
		sets, err := comps.Store.ListSets(context.Background())
		if err != nil {
			t.Fatalf("ListSets: %v", err)
		}
		if len(sets) == 2 && missing(early) && missing(late) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for imports: %d sets", len(sets))
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestDaemonServesMetrics(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Metrics.Bind = "127.0.0.1:0"
	d, _ := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	addr := d.Status().MetricsBind
	if addr == "" {
		t.Fatal("expected metrics address")
	}
	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "beatline_updater_beatmaps_processed_total") {
		t.Fatalf("unexpected metrics response %d", resp.StatusCode)
	}
}

func missing(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

func TestDaemonRequiresComponents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, nil, nil); err == nil {
		t.Fatal("expected error without components")
	}
}
