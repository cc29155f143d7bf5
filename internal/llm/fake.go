package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// FakeRule scripts the Fake's behavior for prompts containing Match.
type FakeRule struct {
	Match    string
	Response string
	Err      error
	Delay    time.Duration
}

// Fake is a scripted Caller for tests and dry runs.
// Rules are evaluated in order; the first rule whose Match is a substring of
// the prompt wins. Without a matching rule it echoes a short canned summary.
type Fake struct {
	mu    sync.Mutex
	rules []FakeRule
	calls []FakeCall
}

// FakeCall records one invocation of the Fake.
type FakeCall struct {
	Prompt      string
	Model       string
	Temperature float64
}

// NewFake creates a Fake with the given rules.
func NewFake(rules ...FakeRule) *Fake {
	return &Fake{rules: rules}
}

// Call implements Caller.
func (f *Fake) Call(ctx context.Context, prompt, model string, temperature float64) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Prompt: prompt, Model: model, Temperature: temperature})
	var rule *FakeRule
	for i := range f.rules {
		if strings.Contains(prompt, f.rules[i].Match) {
			rule = &f.rules[i]
			break
		}
	}
	f.mu.Unlock()

	if rule == nil {
		return fmt.Sprintf("summary of %d chars", len(prompt)), nil
	}
	if rule.Delay > 0 {
		if err := sleep(ctx, rule.Delay); err != nil {
			return "", err
		}
	}
	if rule.Err != nil {
		return "", rule.Err
	}
	return rule.Response, nil
}

// Calls returns a copy of all recorded invocations.
func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsMatching counts recorded prompts containing substr.
func (f *Fake) CallsMatching(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c.Prompt, substr) {
			n++
		}
	}
	return n
}
