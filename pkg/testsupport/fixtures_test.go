package testsupport

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
}

func TestLoadFixtureJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	jsonFile := filepath.Join(dir, "rule.json")
	yamlFile := filepath.Join(dir, "rule.yaml")

	writeFile(t, jsonFile, `{"id":"project-update","priority":"high"}`)
	writeFile(t, yamlFile, "id: project-update\npriority: high\n")

	var fromJSON, fromYAML struct {
		ID       string `json:"id" yaml:"id"`
		Priority string `json:"priority" yaml:"priority"`
	}
	LoadFixtureJSON(t, jsonFile, &fromJSON)
	LoadFixtureYAML(t, yamlFile, &fromYAML)

	if fromJSON != fromYAML {
		t.Errorf("expected identical fixtures, got %+v and %+v", fromJSON, fromYAML)
	}
	if fromJSON.ID != "project-update" {
		t.Errorf("expected id project-update, got %q", fromJSON.ID)
	}

	data, err := io.ReadAll(LoadReader(t, yamlFile))
	if err != nil || len(data) == 0 {
		t.Errorf("expected reader over fixture data, got %q (err=%v)", data, err)
	}
}

func TestCompareWithGolden(t *testing.T) {
	t.Setenv(UpdateGoldenEnv, "")
	golden := filepath.Join(t.TempDir(), "golden", "history.json")

	CompareJSONWithGolden(t, golden, map[string]any{"appliedRules": []string{"project-update-immediate"}})
	if _, err := os.Stat(golden); err != nil {
		t.Fatalf("golden file should have been created: %v", err)
	}

	// Second run compares against the file just written.
	CompareJSONWithGolden(t, golden, map[string]any{"appliedRules": []string{"project-update-immediate"}})
}

func TestPaths(t *testing.T) {
	if got := FixturePath("rules.yaml"); got != filepath.Join("testdata", "rules.yaml") {
		t.Errorf("unexpected fixture path %q", got)
	}
	if got := GoldenPath("out.json"); got != filepath.Join("testdata", "golden", "out.json") {
		t.Errorf("unexpected golden path %q", got)
	}
}

func TestClock_AfterFunc(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := NewClock(start)

	var fired []string
	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	stopped := clock.AfterFunc(1500*time.Millisecond, func() { fired = append(fired, "stopped") })

	if !stopped.Stop() {
		t.Error("expected pending timer to stop")
	}
	if stopped.Stop() {
		t.Error("expected second stop to report false")
	}

	clock.Advance(1500 * time.Millisecond)
	if len(fired) != 1 || fired[0] != "a" {
		t.Fatalf("expected only timer a to fire, got %v", fired)
	}

	clock.Advance(time.Second)
	if len(fired) != 2 || fired[1] != "b" {
		t.Fatalf("expected timer b to fire second, got %v", fired)
	}

	if !clock.Now().Equal(start.Add(2500 * time.Millisecond)) {
		t.Errorf("unexpected clock time %v", clock.Now())
	}
	if clock.PendingTimers() != 0 {
		t.Errorf("expected no pending timers, got %d", clock.PendingTimers())
	}
}

func TestClock_TimerSeesItsDeadline(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := NewClock(start)

	var seen time.Time
	clock.AfterFunc(time.Second, func() { seen = clock.Now() })
	clock.Advance(time.Minute)

	if !seen.Equal(start.Add(time.Second)) {
		t.Errorf("expected timer to observe its deadline, got %v", seen)
	}
}

func TestNewStore(t *testing.T) {
	store := NewStoreWithBudget(t, 16)
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("unexpected set error: %v", err)
	}
	if err := store.Set(ctx, "k2", "a value larger than the budget"); err == nil {
		t.Error("expected budget to be enforced")
	}
}
