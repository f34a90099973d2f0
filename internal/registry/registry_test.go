package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tuannvm/workorder-a2a/internal/baseline"
	"github.com/tuannvm/workorder-a2a/internal/models"
)

type fakeSource struct {
	batches [][]map[string]interface{}
	calls   int
	err     error
}

func (f *fakeSource) Search(ctx context.Context, jql string) ([]map[string]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	batch := f.batches[f.calls]
	if f.calls < len(f.batches)-1 {
		f.calls++
	}
	return batch, nil
}

func issue(id, key, summary, priority, status string) map[string]interface{} {
	return map[string]interface{}{
		"id":  id,
		"key": key,
		"fields": map[string]interface{}{
			"summary":     summary,
			"description": "details",
			"priority":    map[string]interface{}{"name": priority},
			"status":      map[string]interface{}{"name": status},
			"assignee":    map[string]interface{}{"displayName": "Sam Ortiz"},
		},
	}
}

func loaded(t *testing.T, batches ...[]map[string]interface{}) *Registry {
	t.Helper()
	reg := New(&fakeSource{batches: batches}, nil, "")
	if err := reg.EnsureLoaded(context.Background()); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	return reg
}

func keys(records []models.WorkOrderRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Key
	}
	return out
}

func TestList_StableByScore(t *testing.T) {
	reg := loaded(t, []map[string]interface{}{
		issue("1", "DWOS-1", "door sensor", "Medium", "Open"),
		issue("2", "DWOS-2", "GPU rack thermal drift", "High", "Open"),
		issue("3", "DWOS-3", "badge reader", "Medium", "Open"),
		issue("4", "DWOS-4", "camera offline", "Medium", "Open"),
	})

	records, err := reg.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"DWOS-2", "DWOS-1", "DWOS-3", "DWOS-4"}
	if got := keys(records); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if records[0].Score != 1.3 {
		t.Errorf("top score = %v, want 1.3", records[0].Score)
	}
}

func TestRefresh_ReplacesPreviousSnapshot(t *testing.T) {
	source := &fakeSource{batches: [][]map[string]interface{}{
		{issue("1", "DWOS-1", "a", "Low", "Open"), issue("2", "DWOS-2", "b", "Low", "Open")},
		{issue("3", "DWOS-3", "c", "Low", "Open")},
	}}
	reg := New(source, nil, "")
	ctx := context.Background()

	if n, err := reg.Refresh(ctx); err != nil || n != 2 {
		t.Fatalf("first Refresh = %d, %v", n, err)
	}
	if _, err := reg.RecordNote("DWOS-1", "sam", "checked fans"); err != nil {
		t.Fatalf("RecordNote: %v", err)
	}
	if n, err := reg.Refresh(ctx); err != nil || n != 1 {
		t.Fatalf("second Refresh = %d, %v", n, err)
	}

	records, _ := reg.List()
	if got := keys(records); !reflect.DeepEqual(got, []string{"DWOS-3"}) {
		t.Errorf("records after refresh = %v", got)
	}
	if _, err := reg.Get("DWOS-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("old record should be gone, got %v", err)
	}
}

func TestRefresh_SkipsKeylessAndDeduplicates(t *testing.T) {
	reg := loaded(t, []map[string]interface{}{
		issue("1", "DWOS-1", "first", "Low", "Open"),
		{"summary": "no key"},
		issue("2", "DWOS-2", "second", "Low", "Open"),
		issue("9", "DWOS-1", "first again", "Low", "Open"),
	})

	records, _ := reg.List()
	if got := keys(records); !reflect.DeepEqual(got, []string{"DWOS-1", "DWOS-2"}) {
		t.Fatalf("order = %v", got)
	}
	if records[0].Summary != "first again" || records[0].JiraID != "9" {
		t.Errorf("last duplicate should win, got %+v", records[0])
	}
}

func TestRefresh_SourceErrorKeepsState(t *testing.T) {
	source := &fakeSource{err: models.ErrTransport}
	reg := New(source, nil, "")

	if _, err := reg.Refresh(context.Background()); !errors.Is(err, models.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if reg.Loaded() {
		t.Error("failed refresh must not mark the registry loaded")
	}
	if _, err := reg.List(); !errors.Is(err, models.ErrNotLoaded) {
		t.Errorf("List before load = %v, want ErrNotLoaded", err)
	}
	if _, err := reg.Get("DWOS-1"); !errors.Is(err, models.ErrNotLoaded) {
		t.Errorf("Get before load = %v, want ErrNotLoaded", err)
	}
}

func TestBuildRecord(t *testing.T) {
	reg := loaded(t, []map[string]interface{}{
		issue("10", "DWOS-10", "GPU fan failure", "High", "Resolved"),
		{"id": "11", "key": "DWOS-11", "summary": "link down", "status": "Open"},
	})

	done, err := reg.Get("10")
	if err != nil {
		t.Fatalf("Get by jira id: %v", err)
	}
	if !done.Completed {
		t.Error("resolved ticket should be completed")
	}
	if len(done.MissingFields) != 0 {
		t.Errorf("missing = %v", done.MissingFields)
	}
	wantSteps := baseline.SelectSteps("GPU fan failure", "details", "High")
	if len(done.Steps) != len(wantSteps) || done.Steps[0].Description != wantSteps[0] || done.Steps[0].Status != models.StepPending {
		t.Errorf("steps = %+v", done.Steps)
	}

	open, err := reg.Get("DWOS-11")
	if err != nil {
		t.Fatalf("Get by key: %v", err)
	}
	if open.Completed {
		t.Error("open ticket should not be completed")
	}
	if !reflect.DeepEqual(open.MissingFields, []string{"description", "priority", "assignee"}) {
		t.Errorf("missing = %v", open.MissingFields)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	reg := loaded(t, []map[string]interface{}{issue("1", "DWOS-1", "a", "Low", "Open")})

	rec, _ := reg.Get("DWOS-1")
	rec.Steps[0].Status = models.StepDone
	rec.Notes = append(rec.Notes, models.Note{Note: "x"})

	again, _ := reg.Get("DWOS-1")
	if again.Steps[0].Status != models.StepPending || len(again.Notes) != 0 {
		t.Errorf("registry state leaked through a copy: %+v", again)
	}
}

func TestRecordNote(t *testing.T) {
	reg := loaded(t, []map[string]interface{}{issue("1", "DWOS-1", "a", "Low", "Open")})
	fixed := time.Date(2024, 10, 16, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return fixed }

	note, err := reg.RecordNote("DWOS-1", "sam", "replaced fan tray")
	if err != nil {
		t.Fatalf("RecordNote: %v", err)
	}
	if note.Author != "sam" || !note.Timestamp.Equal(fixed) {
		t.Errorf("note = %+v", note)
	}
	if _, err := reg.RecordNote("DWOS-404", "sam", "x"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := reg.RecordNote("DWOS-1", "sam", "  "); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	rec, _ := reg.Get("DWOS-1")
	if len(rec.Notes) != 1 {
		t.Errorf("notes = %v", rec.Notes)
	}
}

func TestMarkStep(t *testing.T) {
	reg := loaded(t, []map[string]interface{}{issue("1", "DWOS-1", "a", "Low", "Open")})

	step, err := reg.MarkStep("DWOS-1", 2, models.StepDone)
	if err != nil {
		t.Fatalf("MarkStep: %v", err)
	}
	if step.Status != models.StepDone {
		t.Errorf("step = %+v", step)
	}

	before, _ := reg.Get("DWOS-1")
	for _, idx := range []int{-1, len(before.Steps)} {
		if _, err := reg.MarkStep("DWOS-1", idx, models.StepDone); !errors.Is(err, models.ErrIndexOutOfRange) {
			t.Errorf("index %d: expected ErrIndexOutOfRange, got %v", idx, err)
		}
	}
	if _, err := reg.MarkStep("DWOS-1", 0, "skipped"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if _, err := reg.MarkStep("DWOS-404", 0, models.StepDone); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	after, _ := reg.Get("DWOS-1")
	if !reflect.DeepEqual(before.Steps, after.Steps) {
		t.Errorf("failed MarkStep mutated steps: %+v", after.Steps)
	}
}

func TestMarkCompletedAndInProgress(t *testing.T) {
	reg := loaded(t, []map[string]interface{}{issue("1", "DWOS-1", "a", "Low", "Open")})

	rec, err := reg.MarkInProgress("DWOS-1")
	if err != nil {
		t.Fatalf("MarkInProgress: %v", err)
	}
	if models.Deref(rec.Status) != StatusInProgress || rec.Completed {
		t.Errorf("record = %+v", rec)
	}

	rec, err = reg.MarkCompleted("1")
	if err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if !rec.Completed {
		t.Error("record should be completed")
	}

	if _, err := reg.MarkCompleted("nope"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHighestPriority(t *testing.T) {
	reg := loaded(t, []map[string]interface{}{
		issue("1", "DWOS-1", "door", "Low", "Open"),
		issue("2", "DWOS-2", "door", "Blocker", "Open"),
	})
	rec, err := reg.HighestPriority()
	if err != nil || rec.Key != "DWOS-2" {
		t.Errorf("HighestPriority = %v, %v", rec.Key, err)
	}

	empty := loaded(t, []map[string]interface{}{})
	if _, err := empty.HighestPriority(); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// alternatingSource returns its batches in turn on every Search
type alternatingSource struct {
	batches [][]map[string]interface{}
	calls   atomic.Int64
}

func (a *alternatingSource) Search(context.Context, string) ([]map[string]interface{}, error) {
	n := a.calls.Add(1) - 1
	return a.batches[int(n)%len(a.batches)], nil
}

func TestRefresh_ReadersSeeWholeSnapshots(t *testing.T) {
	large := make([]map[string]interface{}, 50)
	for i := range large {
		large[i] = issue(fmt.Sprint(i+1), fmt.Sprintf("DWOS-%d", i+1), "rack check", "Medium", "Open")
	}
	small := []map[string]interface{}{issue("1", "DWOS-1", "rack check", "High", "Open")}

	reg := New(&alternatingSource{batches: [][]map[string]interface{}{large, small}}, nil, "")
	ctx := context.Background()
	if _, err := reg.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := reg.Refresh(ctx); err != nil {
				t.Errorf("Refresh: %v", err)
				return
			}
		}
	}()

	errs := make(chan error, 4)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				records, err := reg.List()
				if err != nil {
					errs <- err
					return
				}
				if n := len(records); n != len(large) && n != len(small) {
					errs <- fmt.Errorf("List returned %d records, a mix of snapshots", n)
					return
				}
				// DWOS-1 exists in both batches
				if _, err := reg.RecordNote("DWOS-1", fmt.Sprintf("tech-%d", w), "checked"); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
