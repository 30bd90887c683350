package main

import (
	"strings"
	"testing"
)

func TestDashboardCmdFlags(t *testing.T) {
	cmd := newDashboardCmd()
	if cmd.Use != "dashboard" {
		t.Errorf("expected Use 'dashboard', got %q", cmd.Use)
	}

	portFlag := cmd.Flags().Lookup("port")
	if portFlag == nil {
		t.Fatal("expected --port flag")
	}
	if portFlag.Shorthand != "p" {
		t.Errorf("expected shorthand 'p', got %q", portFlag.Shorthand)
	}
	if portFlag.DefValue != "0" {
		t.Errorf("expected default port '0', got %q", portFlag.DefValue)
	}
}

func TestDashboardMissingConfig(t *testing.T) {
	err := runCommandErr(t, "dashboard", "-c", "/nonexistent/stitch.yaml")
	if !strings.Contains(err.Error(), "load config") {
		t.Errorf("expected load config error, got: %v", err)
	}
}
