package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/kimshangyup/neulbom/internal/config"
	"github.com/kimshangyup/neulbom/internal/model"
)

type fakeRetrier struct {
	attempts []int64
	err      error
}

func (f *fakeRetrier) RetryFailed(_ context.Context, attemptID int64) error {
	f.attempts = append(f.attempts, attemptID)
	return f.err
}

func testWorker(retrier Retrier) *RetryWorker {
	return &RetryWorker{cfg: &config.Config{}, retrier: retrier}
}

func retryPayload(t *testing.T, attemptID int64) []byte {
	t.Helper()
	data, err := json.Marshal(model.SpaceRetryJob{AttemptID: attemptID, RequestedBy: 1})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestHandleMessageRunsRetry(t *testing.T) {
	retrier := &fakeRetrier{}
	w := testWorker(retrier)

	if err := w.handleMessage(context.Background(), retryPayload(t, 7)); err != nil {
		t.Fatalf("handleMessage returned error: %v", err)
	}
	if len(retrier.attempts) != 1 || retrier.attempts[0] != 7 {
		t.Errorf("attempts = %v, want [7]", retrier.attempts)
	}
}

func TestHandleMessagePropagatesRetryFailure(t *testing.T) {
	// The consumer moves messages to the DLQ only when the handler errors,
	// so a failed retry must surface.
	wantErr := stderrors.New("space creation failed")
	w := testWorker(&fakeRetrier{err: wantErr})

	if err := w.handleMessage(context.Background(), retryPayload(t, 7)); !stderrors.Is(err, wantErr) {
		t.Fatalf("err = %v, want the retry failure", err)
	}
}

func TestHandleMessageRejectsMalformedPayload(t *testing.T) {
	retrier := &fakeRetrier{}
	w := testWorker(retrier)

	if err := w.handleMessage(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if len(retrier.attempts) != 0 {
		t.Error("malformed payload must not trigger a retry")
	}
}
