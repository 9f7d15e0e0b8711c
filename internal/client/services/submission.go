package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/htgen/internal/client/client"
	"github.com/dmitrijs2005/htgen/internal/client/models"
	"github.com/dmitrijs2005/htgen/internal/common"
	"github.com/dmitrijs2005/htgen/internal/logging"
	"golang.org/x/text/language"
)

// MaxImageBytes is the largest upload accepted.
const MaxImageBytes = 10 << 20

type SubmissionState string

const (
	StateIdle           SubmissionState = "IDLE"
	StateValidating     SubmissionState = "VALIDATING"
	StateDuplicateCheck SubmissionState = "DUPLICATE_CHECK"
	StateCacheHit       SubmissionState = "CACHE_HIT"
	StateSending        SubmissionState = "SENDING"
	StateSuccess        SubmissionState = "SUCCESS"
	StateQueuedOffline  SubmissionState = "QUEUED_OFFLINE"
	StateFailed         SubmissionState = "FAILED"
)

// Submission is one user request to generate hashtags.
type Submission struct {
	FileName string
	Content  []byte
	// Size is the file size when Content was not loaded because the file is
	// too large. Zero means len(Content).
	Size     int64
	Language string
	Topic    string
}

type SubmissionResult struct {
	State    SubmissionState
	Hashtags []string
	// Entry is the history entry that produced or recorded the hashtags. It
	// is nil when the request was queued or the history write was dropped.
	Entry *models.HistoryEntry
	// Message is the advisory text shown for a queued request.
	Message string
}

type SubmissionService interface {
	// Submit runs one submission. A call made while another is in flight
	// fails with common.ErrBusy.
	Submit(ctx context.Context, sub Submission) (*SubmissionResult, error)
	// State returns the state of the submission in flight, or StateIdle.
	State() SubmissionState
	// Last returns the terminal state of the most recent completed
	// submission, or StateIdle before the first one.
	Last() SubmissionState
}

type submissionService struct {
	client          client.Client
	history         HistoryService
	log             logging.Logger
	defaultLanguage string

	inflight sync.Mutex

	stateMu sync.RWMutex
	state   SubmissionState
	last    SubmissionState
}

func NewSubmissionService(c client.Client, history HistoryService, log logging.Logger, defaultLanguage string) SubmissionService {
	return &submissionService{
		client:          c,
		history:         history,
		log:             log,
		defaultLanguage: defaultLanguage,
		state:           StateIdle,
		last:            StateIdle,
	}
}

func (s *submissionService) State() SubmissionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *submissionService) Last() SubmissionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.last
}

// finish records the outcome of a completed run and returns to IDLE.
func (s *submissionService) finish(ctx context.Context) {
	s.stateMu.Lock()
	s.last = s.state
	s.state = StateIdle
	s.stateMu.Unlock()
	s.log.Debug(ctx, "submission finished", "outcome", s.last)
}

func (s *submissionService) setState(ctx context.Context, st SubmissionState) {
	s.stateMu.Lock()
	prev := s.state
	s.state = st
	s.stateMu.Unlock()
	s.log.Debug(ctx, "submission state", "from", prev, "to", st)
}

func (s *submissionService) fail(ctx context.Context, err error) (*SubmissionResult, error) {
	s.setState(ctx, StateFailed)
	return nil, err
}

func (s *submissionService) Submit(ctx context.Context, sub Submission) (*SubmissionResult, error) {
	if !s.inflight.TryLock() {
		return nil, common.ErrBusy
	}
	defer s.inflight.Unlock()
	defer s.finish(ctx)

	s.setState(ctx, StateValidating)
	lang, err := s.validate(&sub)
	if err != nil {
		return s.fail(ctx, err)
	}
	topic := strings.TrimSpace(sub.Topic)

	s.setState(ctx, StateDuplicateCheck)
	image := models.EncodeImage(sub.FileName, sub.Content)
	sig := models.NewSignature(image, lang, topic)
	log := s.log.With("signature", sig.Digest()[:16])

	hit, err := s.history.FindBySignature(ctx, sig)
	if err != nil {
		log.Warn(ctx, "history lookup failed, sending anyway", "error", err)
	}
	if hit != nil {
		s.setState(ctx, StateCacheHit)
		log.Info(ctx, "duplicate submission served from history", "timestamp", hit.Timestamp)
		return &SubmissionResult{State: StateCacheHit, Hashtags: hit.Hashtags, Entry: hit}, nil
	}

	s.setState(ctx, StateSending)
	tags, err := s.client.Generate(ctx, client.GenerateRequest{
		FileName: sub.FileName,
		Content:  sub.Content,
		Language: lang,
		Topic:    topic,
	})
	switch {
	case errors.Is(err, client.ErrQueued):
		s.setState(ctx, StateQueuedOffline)
		log.Info(ctx, "submission queued for replay")
		return &SubmissionResult{State: StateQueuedOffline, Message: common.OfflineQueuedMessage}, nil
	case err != nil:
		log.Error(ctx, "submission failed", "error", err)
		if !errors.Is(err, common.ErrService) && !errors.Is(err, common.ErrNetwork) {
			err = fmt.Errorf("%w: %w", common.ErrNetwork, err)
		}
		return s.fail(ctx, err)
	}

	entry, err := s.history.Append(ctx, models.HistoryEntry{
		Image:    image,
		Hashtags: tags,
		Language: lang,
		Topic:    models.OptionalTopic(topic),
	})
	if err != nil {
		log.Warn(ctx, "history write failed", "error", err)
	}

	s.setState(ctx, StateSuccess)
	log.Info(ctx, "hashtags generated", "count", len(tags))
	return &SubmissionResult{State: StateSuccess, Hashtags: tags, Entry: entry}, nil
}

// validate checks the attachment and returns the language to use.
func (s *submissionService) validate(sub *Submission) (string, error) {
	if sub.FileName == "" {
		return "", fmt.Errorf("%w: no file attached", common.ErrValidation)
	}
	ext := models.Extension(sub.FileName)
	if _, ok := models.AllowedExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: unsupported file type %q", common.ErrValidation, ext)
	}
	size := sub.Size
	if size == 0 {
		size = int64(len(sub.Content))
	}
	if size > MaxImageBytes || (sub.Content == nil && size > 0) {
		return "", fmt.Errorf("%w: file is %d bytes, limit is %d", common.ErrValidation, size, MaxImageBytes)
	}

	lang := strings.TrimSpace(sub.Language)
	if lang == "" {
		lang = s.defaultLanguage
	}
	if _, err := language.Parse(lang); err != nil {
		return "", fmt.Errorf("%w: language %q: %v", common.ErrValidation, lang, err)
	}
	return lang, nil
}
