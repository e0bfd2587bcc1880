package main

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRunHoldsWorkspaceOpen(t *testing.T) {
	logger = zap.NewNop()
	workspaceDir = t.TempDir()
	runPlay = false
	runStop = make(chan struct{})
	defer func() {
		workspaceDir = ""
		runStop = nil
	}()

	done := make(chan error, 1)
	go func() { done <- runCmd.RunE(runCmd, nil) }()

	// The command must block with the workspace open, not tear it down
	// like the one-shot command families do.
	select {
	case err := <-done:
		t.Fatalf("run exited before being stopped: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	close(runStop)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not shut down")
	}
}
