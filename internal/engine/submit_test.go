package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/blueherons/stattracker/internal/engine"
	"github.com/blueherons/stattracker/internal/store"
	"github.com/blueherons/stattracker/pkg/models"
)

// fixedNow is a Wednesday; week-bucket tests rely on that.
var fixedNow = time.Date(2024, 1, 10, 15, 4, 5, 0, time.UTC)

func newTestEngine(t *testing.T) (*engine.Engine, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	s.AddAgent("Tycho", "tycho@example.com", models.FactionEnlightened)
	eng := engine.New(s).WithClock(func() time.Time { return fixedNow })
	return eng, s
}

func testAgent() models.Agent {
	return models.Agent{Name: "Tycho", Faction: models.FactionEnlightened, Token: "tok"}
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

// ─── Submission ──────────────────────────────────────────────

func TestSubmit_FirstSubmissionTimepointOne(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	res, err := eng.Submit(ctx, testAgent(), map[string]string{"ap": "1000"}, false)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.OK {
		t.Fatalf("Submit() result = %+v, want OK", res)
	}

	dp, ok := s.GetDataPoint("Tycho", fixedNow, "ap")
	if !ok {
		t.Fatal("data point not stored")
	}
	if dp.Timepoint != 1 {
		t.Errorf("Timepoint = %d, want 1", dp.Timepoint)
	}
	if dp.Value != 1000 {
		t.Errorf("Value = %d, want 1000", dp.Value)
	}
}

func TestSubmit_TimepointTenDaysAfterAnchor(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	if _, err := eng.Submit(ctx, testAgent(), map[string]string{"date": "2024-01-01", "ap": "100"}, false); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if _, err := eng.Submit(ctx, testAgent(), map[string]string{"date": "2024-01-11", "ap": "200"}, false); err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}

	dp, _ := s.GetDataPoint("Tycho", day(t, "2024-01-11"), "ap")
	if dp.Timepoint != 11 {
		t.Errorf("Timepoint 10 days after anchor = %d, want 11", dp.Timepoint)
	}
}

func TestSubmit_MonotonicityViolationRollsBackBatch(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	if _, err := eng.Submit(ctx, testAgent(), map[string]string{"ap": "200", "hacks": "3"}, false); err != nil {
		t.Fatalf("seed Submit() error = %v", err)
	}

	res, err := eng.Submit(ctx, testAgent(), map[string]string{"ap": "100", "hacks": "5"}, false)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.OK {
		t.Fatal("Submit() with lower ap should be rejected")
	}
	if res.Violation == nil {
		t.Fatal("Submit() rejection carries no violation")
	}
	if res.Violation.Stat != "ap" || res.Violation.Submitted != 100 || res.Violation.Current != 200 {
		t.Errorf("Violation = %+v, want ap 100 < 200", res.Violation)
	}

	// The whole batch rolls back: hacks stays at 3 even though 5 > 3.
	dp, _ := s.GetDataPoint("Tycho", fixedNow, "ap")
	if dp.Value != 200 {
		t.Errorf("ap after rejected batch = %d, want 200", dp.Value)
	}
	dp, _ = s.GetDataPoint("Tycho", fixedNow, "hacks")
	if dp.Value != 3 {
		t.Errorf("hacks after rejected batch = %d, want 3", dp.Value)
	}
}

func TestSubmit_ViolationMessage(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	eng.Submit(ctx, testAgent(), map[string]string{"ap": "2000000"}, false)
	res, err := eng.Submit(ctx, testAgent(), map[string]string{"ap": "1000000"}, false)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	want := "Stats cannot be updated. 1,000,000 is lower than 2,000,000 for AP."
	if res.Message != want {
		t.Errorf("Message = %q, want %q", res.Message, want)
	}
}

func TestSubmit_EqualValueAccepted(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	eng.Submit(ctx, testAgent(), map[string]string{"ap": "500"}, false)
	res, err := eng.Submit(ctx, testAgent(), map[string]string{"ap": "500"}, false)
	if err != nil || !res.OK {
		t.Errorf("resubmitting an equal value should succeed, got res=%+v err=%v", res, err)
	}
}

func TestSubmit_AllowLowerOverride(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	eng.Submit(ctx, testAgent(), map[string]string{"ap": "500"}, false)
	res, err := eng.Submit(ctx, testAgent(), map[string]string{"ap": "400"}, true)
	if err != nil || !res.OK {
		t.Fatalf("Submit() with allowLower should succeed, got res=%+v err=%v", res, err)
	}

	dp, _ := s.GetDataPoint("Tycho", fixedNow, "ap")
	if dp.Value != 400 {
		t.Errorf("ap after allowed lower write = %d, want 400", dp.Value)
	}
}

func TestSubmit_EmptyBatchSucceeds(t *testing.T) {
	eng, _ := newTestEngine(t)

	res, err := eng.Submit(context.Background(), testAgent(), map[string]string{}, false)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.OK {
		t.Errorf("empty batch result = %+v, want OK", res)
	}
}

func TestSubmit_SanitizesValues(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	res, err := eng.Submit(ctx, testAgent(), map[string]string{
		"ap":     "1,234,567",
		"hacker": "garbage",
		"seer":   "-40",
	}, false)
	if err != nil || !res.OK {
		t.Fatalf("Submit() failed: res=%+v err=%v", res, err)
	}

	cases := map[string]int64{
		"ap":     1234567, // separators stripped
		"hacker": 0,       // non-numeric coerces to zero
		"seer":   0,       // stats are non-negative counters
	}
	for stat, want := range cases {
		dp, ok := s.GetDataPoint("Tycho", fixedNow, stat)
		if !ok {
			t.Errorf("%s: no data point stored", stat)
			continue
		}
		if dp.Value != want {
			t.Errorf("%s = %d, want %d", stat, dp.Value, want)
		}
	}
}

func TestSubmit_BadDateRejected(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Submit(context.Background(), testAgent(), map[string]string{"date": "wednesday", "ap": "1"}, false)
	if err == nil {
		t.Error("Submit() with unparsable date should error")
	}
}
