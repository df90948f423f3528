package realtime

import (
	"testing"

	"collab-realtime/internal/infra/logging"
)

func TestScopeGuardAccept(t *testing.T) {
	cases := []struct {
		name   string
		active string
		jobID  string
		want   bool
	}{
		{"no active conversation accepts all", "", "conv-1", true},
		{"no active accepts empty too", "", "", true},
		{"exact match", "conv-1", "conv-1", true},
		{"job id contains active", "conv-1", "team/conv-1", true},
		{"active contains job id", "team/conv-1", "conv-1", true},
		{"disjoint ids rejected", "conv-1", "conv-2", false},
		{"empty job id with active set rejected", "conv-1", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewScopeGuard(logging.Nop())
			g.SetActive(tc.active)
			if got := g.Accept(tc.jobID); got != tc.want {
				t.Errorf("Accept(%q) with active %q = %v, want %v", tc.jobID, tc.active, got, tc.want)
			}
		})
	}
}

func TestScopeGuardSetActiveReplaces(t *testing.T) {
	g := NewScopeGuard(logging.Nop())

	g.SetActive("conv-1")
	if g.Accept("conv-2") {
		t.Fatal("conv-2 accepted while conv-1 active")
	}
	g.SetActive("conv-2")
	if !g.Accept("conv-2") {
		t.Fatal("conv-2 rejected after becoming active")
	}
	if g.Active() != "conv-2" {
		t.Fatalf("Active() = %q, want conv-2", g.Active())
	}

	// Clearing the active conversation reopens the gate.
	g.SetActive("")
	if !g.Accept("conv-1") {
		t.Fatal("event rejected with no active conversation")
	}
}
