package tree

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"rabbithole/internal/model"
)

func TestAutoSaver_StopWaitsForRunningSave(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	a := newAutoSaver(time.Millisecond, func() {
		close(started)
		<-release
		finished.Store(true)
	})

	a.Notify()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected the timer to start a save")
	}
	if a.Pending() {
		t.Fatalf("expected nothing pending once the save is running")
	}

	stopped := make(chan struct{})
	go func() {
		a.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatalf("Stop returned while a save was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatalf("Stop did not return after the save finished")
	}
	if !finished.Load() {
		t.Fatalf("expected the running save to complete before Stop returned")
	}

	a.Notify()
	if a.Pending() {
		t.Fatalf("expected Notify after Stop to be ignored")
	}
}

// A save the timer already started must reach the persister even when Close
// runs at the same moment.
func TestClose_KeepsSaveStartedByTimer(t *testing.T) {
	p := &memPersister{}
	s := New(Options{Persister: p, Clock: &stepClock{}, IDs: &seqIDs{}, AutoSaveDebounce: time.Millisecond})
	s.AddNode("Dog", "", model.ContextSessionStart)

	deadline := time.Now().Add(5 * time.Second)
	for s.AutoSavePending() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	trees, err := p.LoadSavedTrees(context.Background())
	if err != nil {
		t.Fatalf("load saved trees: %v", err)
	}
	if len(trees) != 1 || len(trees[0].Nodes) != 1 {
		t.Fatalf("expected the auto-saved tree persisted, got %+v", trees)
	}
}
