package cmd

import (
	"testing"
)

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"serve":   false,
		"migrate": false,
		"rechunk": false,
		"version": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("DOSSIER_RATE_LIMIT", "2.5")
	if got := envFloat("DOSSIER_RATE_LIMIT", 10); got != 2.5 {
		t.Errorf("envFloat = %v, want 2.5", got)
	}
	t.Setenv("DOSSIER_RATE_LIMIT", "not-a-number")
	if got := envFloat("DOSSIER_RATE_LIMIT", 10); got != 10 {
		t.Errorf("envFloat(invalid) = %v, want fallback 10", got)
	}

	t.Setenv("DOSSIER_RATE_BURST", "50")
	if got := envInt("DOSSIER_RATE_BURST", 30); got != 50 {
		t.Errorf("envInt = %v, want 50", got)
	}
	t.Setenv("DOSSIER_RATE_BURST", "-1")
	if got := envInt("DOSSIER_RATE_BURST", 30); got != 30 {
		t.Errorf("envInt(negative) = %v, want fallback 30", got)
	}
}
