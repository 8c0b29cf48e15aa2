package observability

import (
	"strings"
	"testing"
	"time"
)

func TestTrack_OverlappingActivities(t *testing.T) {
	first := Track(RolePipeline, "run-a", 4)
	second := Track(RoleBatch, "batch", 10)

	first.End()

	snap := Current()
	if len(snap.Active) != 1 {
		t.Fatalf("expected 1 active activity, got %d", len(snap.Active))
	}
	if snap.Role != RoleBatch {
		t.Errorf("expected role %s while the batch runs, got %s", RoleBatch, snap.Role)
	}

	second.End()
	if snap := Current(); snap.Role != RoleIdle || len(snap.Active) != 0 {
		t.Errorf("expected idle after every activity ended, got %s with %d active", snap.Role, len(snap.Active))
	}
}

func TestTrack_StepAndProgress(t *testing.T) {
	run := Track(RolePipeline, "run-b", 4)
	defer run.End()
	run.Step("differential", 1, 2)

	a := Current().Active[0]
	if a.Step != "differential" || a.Done != 1 || a.Attempt != 2 || a.Total != 4 {
		t.Errorf("unexpected activity %+v", a)
	}

	// Updates after End are ignored.
	run.End()
	run.Progress(3, 1)
	if n := len(Current().Active); n != 0 {
		t.Errorf("expected no active activity, got %d", n)
	}
}

func TestHeartbeat(t *testing.T) {
	before := time.Now()
	Heartbeat()
	if Current().LastHeartbeat.Before(before) {
		t.Error("Heartbeat did not advance")
	}
}

func TestStatusLine(t *testing.T) {
	now := time.Now()
	snap := Snapshot{
		Role:          RolePipeline,
		LastHeartbeat: now.Add(-5 * time.Second),
		Active: []Activity{
			{ID: "batch", Role: RoleBatch, Done: 3, Total: 10, Failed: 1},
			{ID: "1a2b3c4d-5e6f", Role: RolePipeline, Step: "workup", Done: 2, Total: 4, Attempt: 2},
		},
	}

	line := StatusLine(snap, now)
	for _, want := range []string{"HEALTHY", "PIPELINE 1a2b3c4d workup 3/4 try 2", "+1 active"} {
		if !strings.Contains(line, want) {
			t.Errorf("status line %q does not contain %q", line, want)
		}
	}

	snap.Active = snap.Active[:1]
	snap.LastHeartbeat = now.Add(-time.Minute)
	line = StatusLine(snap, now)
	if !strings.Contains(line, "LAGGING") || !strings.Contains(line, "BATCH 3/10 failed 1") {
		t.Errorf("unexpected status line %q", line)
	}

	if line := StatusLine(Snapshot{LastHeartbeat: now.Add(-2 * time.Minute)}, now); !strings.Contains(line, "OFFLINE") || !strings.Contains(line, "IDLE") {
		t.Errorf("unexpected idle status line %q", line)
	}
}
