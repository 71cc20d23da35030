package updater_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"beatline/internal/beatmap"
	"beatline/internal/library"
	"beatline/internal/logging"
	"beatline/internal/rulesets"
	"beatline/internal/testsupport"
	"beatline/internal/updater"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, e := range r.snapshot() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

type fakeWorking struct {
	rec  *recorder
	maps map[string]*beatmap.Beatmap
	err  error
}

func (f *fakeWorking) Invalidate(set *beatmap.SetInfo) {
	f.rec.add("working.invalidate")
}

func (f *fakeWorking) Get(_ context.Context, info beatmap.Info) (*beatmap.WorkingBeatmap, error) {
	f.rec.add("working.get:%s", info.DifficultyName)
	if f.err != nil {
		return nil, f.err
	}
	return &beatmap.WorkingBeatmap{Info: info, Beatmap: f.maps[info.Filename]}, nil
}

type fakeDifficulty struct{ rec *recorder }

func (f fakeDifficulty) Invalidate(info beatmap.Info) {
	f.rec.add("difficulty.invalidate:%s", info.DifficultyName)
}

type fakeLookup struct{ rec *recorder }

func (f fakeLookup) Update(set *beatmap.SetInfo) {
	f.rec.add("lookup.update")
}

type calculatorFunc func(ctx context.Context, mods []rulesets.Mod) (rulesets.Attributes, error)

func (f calculatorFunc) Calculate(ctx context.Context, mods []rulesets.Mod) (rulesets.Attributes, error) {
	return f(ctx, mods)
}

type fakeRuleset struct {
	name string
	rec  *recorder
	calc func(working *beatmap.WorkingBeatmap) (rulesets.Attributes, error)
}

func (r fakeRuleset) ShortName() string { return r.name }
func (r fakeRuleset) LegacyID() int     { return -1 }

func (r fakeRuleset) CreateDifficultyCalculator(working *beatmap.WorkingBeatmap) rulesets.DifficultyCalculator {
	return calculatorFunc(func(context.Context, []rulesets.Mod) (rulesets.Attributes, error) {
		r.rec.add("calculate:%s", working.Info.DifficultyName)
		if r.calc != nil {
			return r.calc(working)
		}
		return rulesets.Attributes{StarRating: float64(len(working.Beatmap.HitObjects))}, nil
	})
}

type fakeRegistry struct {
	rec   *recorder
	known map[string]rulesets.Ruleset
}

func (f fakeRegistry) Create(name string) (rulesets.Ruleset, error) {
	f.rec.add("rulesets.create:%s", name)
	if rs, ok := f.known[name]; ok {
		return rs, nil
	}
	return nil, fmt.Errorf("%w: %q", rulesets.ErrRulesetNotFound, name)
}

type harness struct {
	rec      *recorder
	store    *library.Store
	working  *fakeWorking
	registry fakeRegistry
	updater  *updater.Updater
	now      time.Time
}

func newHarness(t *testing.T, calc func(*beatmap.WorkingBeatmap) (rulesets.Attributes, error)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	rec := &recorder{}
	h := &harness{
		rec:   rec,
		store: testsupport.MustOpenStore(t, cfg),
		working: &fakeWorking{rec: rec, maps: map[string]*beatmap.Beatmap{
			"hard.osu": {
				ControlPoints: beatmap.ControlPointInfo{Timing: []beatmap.TimingPoint{{Time: 0, BeatLength: 500, Meter: 4}}},
				HitObjects:    []beatmap.HitObject{&beatmap.Circle{Time: 1000}, &beatmap.Circle{Time: 3000}, &beatmap.Circle{Time: 5000}},
			},
			"empty.osu": {},
		}},
		now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.registry = fakeRegistry{rec: rec, known: map[string]rulesets.Ruleset{
		"osu": fakeRuleset{name: "osu", rec: rec, calc: calc},
	}}
	h.updater = updater.New(h.store, h.working, fakeDifficulty{rec: rec}, fakeLookup{rec: rec}, h.registry,
		updater.WithLogger(logging.NewNop()),
		updater.WithWorkers(2),
		updater.WithClock(func() time.Time { return h.now }))
	t.Cleanup(h.updater.Close)
	return h
}

func (h *harness) insert(t *testing.T, rulesetOfEmpty string) *beatmap.SetInfo {
	t.Helper()
	return testsupport.InsertSet(t, h.store, &beatmap.SetInfo{
		Metadata: beatmap.Metadata{Title: "Harumachi Clover"},
		Hash:     "hash-" + uuid.NewString(),
		Beatmaps: []*beatmap.Info{
			{DifficultyName: "Hard", Ruleset: "osu", Filename: "hard.osu", FileHash: "h1", MD5Hash: "m1"},
			{DifficultyName: "Empty", Ruleset: rulesetOfEmpty, Filename: "empty.osu", FileHash: "h2", MD5Hash: "m2"},
		},
	})
}

func TestProcessRunsStepsInOrder(t *testing.T) {
	h := newHarness(t, nil)
	set := h.insert(t, "osu")

	if err := h.updater.Process(context.Background(), set); err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := []string{
		"working.invalidate",
		"lookup.update",
		"difficulty.invalidate:Hard",
		"working.get:Hard",
		"rulesets.create:osu",
		"calculate:Hard",
		"difficulty.invalidate:Empty",
		"working.get:Empty",
		"rulesets.create:osu",
		"calculate:Empty",
	}
	got := h.rec.snapshot()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("unexpected step order:\n got: %v\nwant: %v", got, want)
	}

	loaded := testsupport.LoadSet(t, h.store, set)
	hard, empty := loaded.Beatmaps[0], loaded.Beatmaps[1]
	if hard.StarRating != 3 || hard.Length != 4000*time.Millisecond || hard.BPM != 120 {
		t.Fatalf("unexpected derived values for hard: stars=%v length=%v bpm=%v", hard.StarRating, hard.Length, hard.BPM)
	}
	if !hard.LastProcessed.Equal(h.now) {
		t.Fatalf("expected LastProcessed %v, got %v", h.now, hard.LastProcessed)
	}
	if empty.StarRating != 0 || empty.Length != 0 || empty.BPM != 0 {
		t.Fatalf("expected zero derived values for empty beatmap, got %+v", empty)
	}
}

func TestProcessUnknownRulesetRollsBack(t *testing.T) {
	h := newHarness(t, nil)
	set := h.insert(t, "sentakki")

	err := h.updater.Process(context.Background(), set)
	if !errors.Is(err, rulesets.ErrRulesetNotFound) {
		t.Fatalf("expected ErrRulesetNotFound, got %v", err)
	}

	loaded := testsupport.LoadSet(t, h.store, set)
	if loaded.Beatmaps[0].StarRating != 0 || !loaded.Beatmaps[0].LastProcessed.IsZero() {
		t.Fatalf("expected first beatmap to be rolled back, got %+v", loaded.Beatmaps[0])
	}
	if h.rec.count("calculate:Empty") != 0 {
		t.Fatal("calculator must not run for an unresolvable ruleset")
	}
}

func TestProcessPropagatesCalculatorError(t *testing.T) {
	boom := errors.New("calculator exploded")
	h := newHarness(t, func(*beatmap.WorkingBeatmap) (rulesets.Attributes, error) {
		return rulesets.Attributes{}, boom
	})
	set := h.insert(t, "osu")

	if err := h.updater.Process(context.Background(), set); !errors.Is(err, boom) {
		t.Fatalf("expected calculator error, got %v", err)
	}
	if h.rec.count("working.get") != 1 {
		t.Fatalf("expected run to stop at the first beatmap, events: %v", h.rec.snapshot())
	}
}

func TestProcessPropagatesWorkingCacheError(t *testing.T) {
	h := newHarness(t, nil)
	h.working.err = errors.New("file missing")
	set := h.insert(t, "osu")

	if err := h.updater.Process(context.Background(), set); err == nil {
		t.Fatal("expected working cache error")
	}
	if h.rec.count("rulesets.create") != 0 {
		t.Fatal("ruleset must not be resolved after a failed decode")
	}
}

func TestQueueDeliversResult(t *testing.T) {
	h := newHarness(t, nil)
	set := h.insert(t, "osu")

	if err := <-h.updater.Queue(h.store.Live(set.ID)); err != nil {
		t.Fatalf("queued run failed: %v", err)
	}
	loaded := testsupport.LoadSet(t, h.store, set)
	if loaded.Beatmaps[0].StarRating != 3 {
		t.Fatalf("expected queued run to commit, got %+v", loaded.Beatmaps[0])
	}

	bad := h.insert(t, "sentakki")
	if err := <-h.updater.Queue(h.store.Live(bad.ID)); !errors.Is(err, rulesets.ErrRulesetNotFound) {
		t.Fatalf("expected ErrRulesetNotFound on channel, got %v", err)
	}
}

func TestQueueMissingSet(t *testing.T) {
	h := newHarness(t, nil)
	set := h.insert(t, "osu")
	if err := h.store.Write(context.Background(), func(tx *library.Tx) error {
		return tx.DeleteSet(context.Background(), set.ID)
	}); err != nil {
		t.Fatalf("DeleteSet: %v", err)
	}

	if err := <-h.updater.Queue(h.store.Live(set.ID)); !errors.Is(err, library.ErrSetNotFound) {
		t.Fatalf("expected ErrSetNotFound, got %v", err)
	}
}

func TestQueueCoalescesRequestsDuringRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls, active, maxActive atomic.Int32

	h := newHarness(t, func(w *beatmap.WorkingBeatmap) (rulesets.Attributes, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			seen := maxActive.Load()
			if n <= seen || maxActive.CompareAndSwap(seen, n) {
				break
			}
		}
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return rulesets.Attributes{StarRating: 1}, nil
	})
	set := h.insert(t, "osu")
	live := h.store.Live(set.ID)

	first := h.updater.Queue(live)
	<-started
	second := h.updater.Queue(live)
	third := h.updater.Queue(live)
	close(release)

	for i, ch := range []<-chan error{first, second, third} {
		if err := <-ch; err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}
	h.updater.Wait()

	if runs := h.rec.count("working.invalidate"); runs != 2 {
		t.Fatalf("expected 2 runs for 3 requests, got %d", runs)
	}
	if maxActive.Load() != 1 {
		t.Fatalf("runs for one set overlapped: %d concurrent", maxActive.Load())
	}
}

func TestQueueAfterCloseFails(t *testing.T) {
	h := newHarness(t, nil)
	set := h.insert(t, "osu")
	h.updater.Close()

	if err := <-h.updater.Queue(h.store.Live(set.ID)); !errors.Is(err, updater.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
