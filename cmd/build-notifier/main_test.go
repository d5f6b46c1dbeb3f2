package main

import (
	"testing"
	"time"

	"sigs.k8s.io/prow/pkg/interrupts"
)

// Loop mode relies on Tick running the first scan on its own; an explicit
// scan before it would report every release twice at startup.
func TestTickScansOnceAtStartup(t *testing.T) {
	scans := make(chan struct{}, 2)
	interrupts.Tick(func() { scans <- struct{}{} }, func() time.Duration { return time.Hour })

	select {
	case <-scans:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a scan right after startup")
	}
	select {
	case <-scans:
		t.Fatal("expected no second scan within the first interval")
	case <-time.After(500 * time.Millisecond):
	}
}
