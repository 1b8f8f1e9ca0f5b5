package vision

import (
	"context"
	"time"
)

// StaticClassifier returns a fixed verdict. Used for dry runs and for
// wiring tests without a remote inference service.
type StaticClassifier struct {
	Failed bool
	Reason string
}

var _ Classifier = (*StaticClassifier)(nil)

func (s *StaticClassifier) Classify(_ context.Context, _ []byte, _ string) (Verdict, error) {
	start := time.Now()
	return Verdict{
		Failed:  s.Failed,
		Reason:  s.Reason,
		Model:   "static",
		Elapsed: time.Since(start),
	}, nil
}
