package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/htgen/internal/client/client"
	"github.com/dmitrijs2005/htgen/internal/common"
	"github.com/dmitrijs2005/htgen/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSubmission(t *testing.T, fc *fakeClient) (SubmissionService, HistoryService) {
	t.Helper()
	h, _ := newHistory(t, 0, newFakeClock(1))
	return NewSubmissionService(fc, h, logging.Discard(), "en"), h
}

func pngSubmission(topic string) Submission {
	return Submission{FileName: "photo.PNG", Content: []byte("\x89PNG data"), Language: "en", Topic: topic}
}

func TestSubmit_SuccessRecordsHistory(t *testing.T) {
	fc := &fakeClient{Tags: []string{"#sun", "#sea"}}
	svc, h := newSubmission(t, fc)
	ctx := context.Background()

	res, err := svc.Submit(ctx, pngSubmission(" beach "))
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, res.State)
	assert.Equal(t, []string{"#sun", "#sea"}, res.Hashtags)
	require.NotNil(t, res.Entry)
	assert.Equal(t, "beach", fc.LastReq.Topic)
	assert.Equal(t, StateIdle, svc.State())
	assert.Equal(t, StateSuccess, svc.Last())

	list, err := h.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "beach", list[0].TopicValue())
	assert.Contains(t, list[0].Image, "data:image/png;base64,")
}

func TestSubmit_DuplicateMakesNoNetworkCall(t *testing.T) {
	fc := &fakeClient{Tags: []string{"#a"}}
	svc, _ := newSubmission(t, fc)
	ctx := context.Background()

	_, err := svc.Submit(ctx, pngSubmission(""))
	require.NoError(t, err)
	require.Equal(t, 1, fc.calls())

	// absent and whitespace-only topics are the same identity
	res, err := svc.Submit(ctx, pngSubmission("   "))
	require.NoError(t, err)
	assert.Equal(t, StateCacheHit, res.State)
	assert.Equal(t, []string{"#a"}, res.Hashtags)
	assert.Equal(t, 1, fc.calls())

	// a different topic is a new submission
	_, err = svc.Submit(ctx, pngSubmission("city"))
	require.NoError(t, err)
	assert.Equal(t, 2, fc.calls())
}

func TestSubmit_DefaultLanguageParticipatesInIdentity(t *testing.T) {
	fc := &fakeClient{Tags: []string{"#a"}}
	svc, _ := newSubmission(t, fc)
	ctx := context.Background()

	sub := pngSubmission("")
	sub.Language = ""
	_, err := svc.Submit(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, "en", fc.LastReq.Language)

	res, err := svc.Submit(ctx, pngSubmission(""))
	require.NoError(t, err)
	assert.Equal(t, StateCacheHit, res.State)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name string
		sub  Submission
	}{
		{"no file", Submission{Language: "en"}},
		{"bad extension", Submission{FileName: "doc.pdf", Content: []byte("x"), Language: "en"}},
		{"too large", Submission{FileName: "a.jpg", Content: make([]byte, MaxImageBytes+1), Language: "en"}},
		{"too large unread", Submission{FileName: "a.jpg", Size: MaxImageBytes + 1, Language: "en"}},
		{"bad language", Submission{FileName: "a.jpg", Content: []byte("x"), Language: "not a language!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeClient{}
			svc, _ := newSubmission(t, fc)

			_, err := svc.Submit(context.Background(), tt.sub)
			require.ErrorIs(t, err, common.ErrValidation)
			assert.Equal(t, StateIdle, svc.State())
			assert.Equal(t, StateFailed, svc.Last())
			assert.Zero(t, fc.calls())
		})
	}
}

func TestSubmit_AcceptsExactSizeLimit(t *testing.T) {
	fc := &fakeClient{Tags: []string{"#big"}}
	svc, _ := newSubmission(t, fc)

	res, err := svc.Submit(context.Background(), Submission{FileName: "a.jpg", Content: make([]byte, MaxImageBytes), Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, res.State)
	assert.Equal(t, 1, fc.calls())
	assert.Len(t, fc.LastReq.Content, MaxImageBytes)
}

func TestSubmit_AcceptsAllowedExtensions(t *testing.T) {
	for _, ext := range []string{"png", "jpg", "JPEG", "webp", "heic", "HEIF"} {
		fc := &fakeClient{Tags: []string{"#ok"}}
		svc, _ := newSubmission(t, fc)

		_, err := svc.Submit(context.Background(), Submission{FileName: "f." + ext, Content: []byte(ext), Language: "en"})
		require.NoError(t, err, ext)
	}
}

func TestSubmit_ServiceAndNetworkErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"service", fmt.Errorf("%w: bad image", common.ErrService), common.ErrService},
		{"network", fmt.Errorf("%w: refused", common.ErrNetwork), common.ErrNetwork},
		{"unclassified", errors.New("boom"), common.ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeClient{Err: tt.err}
			svc, h := newSubmission(t, fc)

			_, err := svc.Submit(context.Background(), pngSubmission(""))
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, StateIdle, svc.State())
			assert.Equal(t, StateFailed, svc.Last())

			list, err := h.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestSubmit_QueuedOfflineIsPseudoSuccess(t *testing.T) {
	fc := &fakeClient{Err: client.ErrQueued}
	svc, h := newSubmission(t, fc)

	res, err := svc.Submit(context.Background(), pngSubmission(""))
	require.NoError(t, err)
	assert.Equal(t, StateQueuedOffline, res.State)
	assert.Equal(t, common.OfflineQueuedMessage, res.Message)
	assert.Nil(t, res.Entry)
	assert.Equal(t, StateQueuedOffline, svc.Last())

	list, err := h.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmit_BusyWhileInFlight(t *testing.T) {
	fc := &fakeClient{Tags: []string{"#a"}, block: make(chan struct{}), entered: make(chan struct{})}
	svc, _ := newSubmission(t, fc)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(ctx, pngSubmission(""))
		done <- err
	}()

	<-fc.entered
	assert.Equal(t, StateSending, svc.State())
	assert.Equal(t, StateIdle, svc.Last())

	_, err := svc.Submit(ctx, pngSubmission("other"))
	require.ErrorIs(t, err, common.ErrBusy)

	close(fc.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, svc.State())
	assert.Equal(t, StateSuccess, svc.Last())
}

func TestSubmit_StateReturnsToIdleBetweenRuns(t *testing.T) {
	fc := &fakeClient{Tags: []string{"#a"}}
	svc, _ := newSubmission(t, fc)
	ctx := context.Background()

	assert.Equal(t, StateIdle, svc.State())
	assert.Equal(t, StateIdle, svc.Last())

	_, err := svc.Submit(ctx, Submission{FileName: "a.pdf", Content: []byte("x"), Language: "en"})
	require.Error(t, err)
	assert.Equal(t, StateIdle, svc.State())
	assert.Equal(t, StateFailed, svc.Last())

	_, err = svc.Submit(ctx, pngSubmission(""))
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, svc.Last())

	res, err := svc.Submit(ctx, pngSubmission(""))
	require.NoError(t, err)
	assert.Equal(t, StateCacheHit, res.State)
	assert.Equal(t, StateIdle, svc.State())
	assert.Equal(t, StateCacheHit, svc.Last())
}
