package engine_test

import (
	"context"
	"testing"

	"github.com/blueherons/stattracker/pkg/models"
)

// ─── Lazy view caching ───────────────────────────────────────

func TestCachedView_SingleBackendCall(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	s.SetLevel("Tycho", fixedNow, 8)

	view := eng.View(testAgent())
	for i := 0; i < 3; i++ {
		level, err := view.Level(ctx, false)
		if err != nil {
			t.Fatalf("Level() error = %v", err)
		}
		if level != 8 {
			t.Fatalf("Level() = %d, want 8", level)
		}
	}

	if got := s.CallCount("level"); got != 1 {
		t.Errorf("backend level calls = %d, want 1", got)
	}
}

func TestCachedView_RefreshReplacesValue(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	s.SetLevel("Tycho", fixedNow, 8)

	view := eng.View(testAgent())
	view.Level(ctx, false)

	// The backend moved on; without refresh we keep serving the cache.
	s.SetLevel("Tycho", fixedNow, 9)
	level, _ := view.Level(ctx, false)
	if level != 8 {
		t.Errorf("Level() without refresh = %d, want cached 8", level)
	}

	level, err := view.Level(ctx, true)
	if err != nil {
		t.Fatalf("Level(refresh) error = %v", err)
	}
	if level != 9 {
		t.Errorf("Level(refresh) = %d, want 9", level)
	}
	if got := s.CallCount("level"); got != 2 {
		t.Errorf("backend level calls = %d, want 2", got)
	}
}

func TestCachedView_KindsAreIndependent(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	s.SetLevel("Tycho", fixedNow, 8)
	s.SetBadges("Tycho", fixedNow, []models.BadgeRow{{Badge: "Hacker", Level: "GOLD"}})

	view := eng.View(testAgent())
	view.Level(ctx, false)
	view.Badges(ctx, false)

	// Refreshing level must not touch the badges cache.
	view.Level(ctx, true)
	view.Badges(ctx, false)

	if got := s.CallCount("badges"); got != 1 {
		t.Errorf("backend badges calls = %d, want 1", got)
	}
	if got := s.CallCount("level"); got != 2 {
		t.Errorf("backend level calls = %d, want 2", got)
	}
}

func TestCachedView_SubmitInvalidates(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	s.SetLevel("Tycho", fixedNow, 8)

	view := eng.View(testAgent())
	view.Level(ctx, false)

	res, err := view.Submit(ctx, map[string]string{"ap": "100"}, false)
	if err != nil || !res.OK {
		t.Fatalf("Submit() failed: res=%+v err=%v", res, err)
	}

	s.SetLevel("Tycho", fixedNow, 9)
	level, _ := view.Level(ctx, false)
	if level != 9 {
		t.Errorf("Level() after submission = %d, want reloaded 9", level)
	}
}

func TestCachedView_RejectedSubmitKeepsCache(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	s.SetLevel("Tycho", fixedNow, 8)

	view := eng.View(testAgent())
	view.Submit(ctx, map[string]string{"ap": "200"}, false)
	view.Level(ctx, false)

	// A rejected batch writes nothing, so the cache stays valid.
	res, _ := view.Submit(ctx, map[string]string{"ap": "100"}, false)
	if res.OK {
		t.Fatal("lower submission should be rejected")
	}
	view.Level(ctx, false)

	if got := s.CallCount("level"); got != 1 {
		t.Errorf("backend level calls = %d, want 1", got)
	}
}

func TestCachedView_StatReadsThroughStatsCache(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	eng.Submit(ctx, testAgent(), map[string]string{"ap": "1000", "hacker": "42"}, false)

	view := eng.View(testAgent())
	ap, err := view.Stat(ctx, "ap", false)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if ap != 1000 {
		t.Errorf("Stat(ap) = %d, want 1000", ap)
	}
	hacker, _ := view.Stat(ctx, "hacker", false)
	if hacker != 42 {
		t.Errorf("Stat(hacker) = %d, want 42", hacker)
	}

	// An unknown stat from the snapshot reads as zero, not an error.
	missing, err := view.Stat(ctx, "recharger", false)
	if err != nil || missing != 0 {
		t.Errorf("Stat(recharger) = %d, %v, want 0, nil", missing, err)
	}
}
