package httpapi

import (
	"testing"
)

func TestSessionRegistry_AddAndDone(t *testing.T) {
	sr := NewSessionRegistry()

	if sr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", sr.ActiveCount())
	}

	if !sr.Add("CA1", func() {}) {
		t.Error("Add() should return true when not draining")
	}
	if !sr.Add("CA2", func() {}) {
		t.Error("Add() should return true when not draining")
	}
	if sr.ActiveCount() != 2 {
		t.Errorf("ActiveCount() = %d, want 2", sr.ActiveCount())
	}

	sr.Done("CA1")
	if sr.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1 after one Done()", sr.ActiveCount())
	}

	sr.Done("CA2")
	if sr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0 after all Done()", sr.ActiveCount())
	}
}

func TestSessionRegistry_Close(t *testing.T) {
	sr := NewSessionRegistry()

	closed := 0
	sr.Add("CA1", func() { closed++ })

	sr.Close("CA1")
	if closed != 1 {
		t.Errorf("close func called %d times, want 1", closed)
	}

	// Closing an unknown call is a no-op.
	sr.Close("CA-unknown")
	if closed != 1 {
		t.Errorf("close func called %d times after unknown Close, want 1", closed)
	}
}

func TestSessionRegistry_RekeyBeforeStart(t *testing.T) {
	sr := NewSessionRegistry()

	closed := false
	// Bridge sessions register before the stream start frame carries the
	// call sid.
	if !sr.Add("", func() { closed = true }) {
		t.Fatal("Add() with empty key should succeed")
	}
	sr.Rekey("CA9", func() { closed = true })

	sr.Close("CA9")
	if !closed {
		t.Error("Close after Rekey should tear down the session")
	}

	sr.Done("CA9")
	if sr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d, want 0", sr.ActiveCount())
	}
}

func TestSessionRegistry_Draining(t *testing.T) {
	sr := NewSessionRegistry()

	if sr.IsDraining() {
		t.Error("IsDraining() should be false initially")
	}

	if !sr.Add("CA1", func() {}) {
		t.Error("Add() should succeed before draining")
	}

	sr.StartDraining()
	if !sr.IsDraining() {
		t.Error("IsDraining() should be true after StartDraining()")
	}
	if sr.Add("CA2", func() {}) {
		t.Error("Add() should fail while draining")
	}

	// Wait must return once the in-flight session finishes.
	waited := make(chan struct{})
	go func() {
		sr.Wait()
		close(waited)
	}()

	sr.Done("CA1")
	<-waited
}
