package runner

import (
	"context"
	"fmt"
	"sync"
)

// FakeExecutor is an in-process Executor used by dispatcher tests; it
// records every launch and returns a deterministic synthetic TaskARN.
type FakeExecutor struct {
	mu      sync.Mutex
	Launches []LaunchInput
	FailWith error
}

func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{}
}

func (f *FakeExecutor) Launch(ctx context.Context, in LaunchInput) (LaunchOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return LaunchOutput{}, f.FailWith
	}
	f.Launches = append(f.Launches, in)
	return LaunchOutput{TaskARN: fmt.Sprintf("arn:fake:runner:job/%s", in.JobID)}, nil
}
