package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records sends and serves scripted outcomes, one per call.
type fakeTransport struct {
	calls     int
	lastData  []byte
	lastAttrs map[string]string
	outcomes  []error // nil entry = success; exhausted = success
	nextID    string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{nextID: "1234567890123456"}
}

func (f *fakeTransport) TopicPath() string { return "projects/test/topics/dispatcher" }

func (f *fakeTransport) Publish(_ context.Context, data []byte, attrs map[string]string) (string, error) {
	f.calls++
	f.lastData = data
	f.lastAttrs = attrs
	if len(f.outcomes) > 0 {
		err := f.outcomes[0]
		f.outcomes = f.outcomes[1:]
		if err != nil {
			return "", err
		}
	}
	return f.nextID, nil
}

func validRequest() Request {
	return Request{
		UnitType:      "Police station unit",
		Location:      Location{Zone: "Zone A", Platform: "Platform 3"},
		Priority:      PriorityHigh,
		CorrelationID: "event_2025-07-27T04:13:33.187916000+00:00Z",
	}
}

func TestPublish_Succeeds(t *testing.T) {
	ft := newFakeTransport()
	p := NewPublisher(ft)

	id, err := p.Publish(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "1234567890123456", id)
	assert.Equal(t, 1, ft.calls, "exactly one send attempt per call")

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(ft.lastData, &envelope))
	assert.Equal(t, "Police station unit", envelope["unit_type"])
	assert.Equal(t, "high", envelope["priority"])
	loc := envelope["location"].(map[string]any)
	assert.Equal(t, "Zone A", loc["zone"])
	assert.Equal(t, "Platform 3", loc["platform"])
	assert.Equal(t, "event_2025-07-27T04:13:33.187916000+00:00Z", envelope["correlation_id"])

	assert.Equal(t, "Police station unit", ft.lastAttrs["unit_type"])
	assert.Equal(t, "high", ft.lastAttrs["priority"])
}

func TestPublish_AdHocOmitsCorrelationID(t *testing.T) {
	ft := newFakeTransport()
	p := NewPublisher(ft)

	req := validRequest()
	req.CorrelationID = ""
	_, err := p.Publish(context.Background(), req)
	require.NoError(t, err)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(ft.lastData, &envelope))
	_, present := envelope["correlation_id"]
	assert.False(t, present)
	_, present = ft.lastAttrs["correlation_id"]
	assert.False(t, present)
}

func TestPublish_MalformedRequestIsPermanent(t *testing.T) {
	ft := newFakeTransport()
	p := NewPublisher(ft)

	req := validRequest()
	req.Priority = "critical"
	_, err := p.Publish(context.Background(), req)

	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
	assert.Equal(t, 0, ft.calls, "no send attempt for a malformed request")

	req = validRequest()
	req.UnitType = ""
	_, err = p.Publish(context.Background(), req)
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
}

func TestPublish_TimeoutIsRetryable(t *testing.T) {
	ft := newFakeTransport()
	ft.outcomes = []error{context.DeadlineExceeded}
	p := NewPublisher(ft)

	_, err := p.Publish(context.Background(), validRequest())

	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retryable)
	assert.True(t, Retryable(err))
}

func TestRetry_RecoversFromTransientFailures(t *testing.T) {
	ft := newFakeTransport()
	ft.outcomes = []error{context.DeadlineExceeded, errors.New("unavailable"), nil}
	p := NewPublisher(ft)

	id, err := Retry(context.Background(), p, validRequest(),
		RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "1234567890123456", id)
	assert.Equal(t, 3, ft.calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	ft := newFakeTransport()
	p := NewPublisher(ft)

	req := validRequest()
	req.UnitType = ""
	_, err := Retry(context.Background(), p, req,
		RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond})

	require.Error(t, err)
	assert.False(t, Retryable(err))
	assert.Equal(t, 0, ft.calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	ft := newFakeTransport()
	ft.outcomes = []error{context.DeadlineExceeded, context.DeadlineExceeded, context.DeadlineExceeded}
	p := NewPublisher(ft)

	_, err := Retry(context.Background(), p, validRequest(),
		RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	require.Error(t, err)
	assert.True(t, Retryable(err))
	assert.Equal(t, 3, ft.calls)
}

func TestRetry_HonorsContext(t *testing.T) {
	ft := newFakeTransport()
	ft.outcomes = []error{context.DeadlineExceeded}
	p := NewPublisher(ft)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, p, validRequest(),
		RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour})

	require.Error(t, err)
	assert.Equal(t, 1, ft.calls, "no second attempt after ctx cancel")
}

// blockingTransport hangs until its context expires.
type blockingTransport struct {
	calls int
}

func (b *blockingTransport) TopicPath() string { return "projects/test/topics/dispatcher" }

func (b *blockingTransport) Publish(ctx context.Context, _ []byte, _ map[string]string) (string, error) {
	b.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRetry_PerAttemptTimeout(t *testing.T) {
	bt := &blockingTransport{}
	p := NewPublisher(bt)

	_, err := Retry(context.Background(), p, validRequest(), RetryPolicy{
		MaxAttempts:       2,
		BaseDelay:         time.Millisecond,
		PerAttemptTimeout: 10 * time.Millisecond,
	})

	require.Error(t, err)
	assert.True(t, Retryable(err), "a timed-out attempt is retryable")
	assert.Equal(t, 2, bt.calls)
}

func TestLogTransport_ProducesNumericIDs(t *testing.T) {
	lt := NewLogTransport("dispatcher")

	id1, err := lt.Publish(context.Background(), []byte(`{}`), nil)
	require.NoError(t, err)
	id2, err := lt.Publish(context.Background(), []byte(`{}`), nil)
	require.NoError(t, err)

	assert.Regexp(t, `^\d+$`, id1)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, "log://topics/dispatcher", lt.TopicPath())
}
