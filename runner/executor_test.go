package runner

import (
	"context"
	"testing"
)

func TestFakeExecutorRecordsLaunches(t *testing.T) {
	f := NewFakeExecutor()
	out, err := f.Launch(context.Background(), LaunchInput{JobID: "job1", Command: "apply"})
	if err != nil {
		t.Fatal(err)
	}
	if out.TaskARN == "" {
		t.Fatalf("expected non-empty task arn")
	}
	if len(f.Launches) != 1 || f.Launches[0].JobID != "job1" {
		t.Fatalf("expected launch recorded, got %+v", f.Launches)
	}
}

func TestFakeExecutorFailure(t *testing.T) {
	f := NewFakeExecutor()
	f.FailWith = context.DeadlineExceeded
	if _, err := f.Launch(context.Background(), LaunchInput{JobID: "job1"}); err == nil {
		t.Fatalf("expected error")
	}
}
