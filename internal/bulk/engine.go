// Package bulk runs batch reply sends, either tracked as an
// asynchronous job with polled progress, or synchronously for the
// legacy one-shot endpoint.
package bulk

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/mail-responder/internal/model"
	"github.com/nhle/mail-responder/internal/send"
	"github.com/nhle/mail-responder/internal/store"
)

// ErrNoMessages rejects a bulk request with an empty message list.
var ErrNoMessages = errors.New("No messages selected")

// jobTimeout bounds one whole job run.
const jobTimeout = 10 * time.Minute

type job struct {
	id         string
	userID     string
	messageIDs []string
	body       string
}

// Engine accepts bulk jobs and processes them on a small worker pool.
// Job state lives entirely in the store, so progress polling works
// across restarts even though an interrupted job stays RUNNING.
type Engine struct {
	store  store.Store
	send   *send.Engine
	logger *zap.Logger

	jobs   chan job
	stopCh chan struct{}
	wg     gosync.WaitGroup

	startOnce gosync.Once
	stopOnce  gosync.Once
}

// NewEngine creates a bulk engine. Start must be called before jobs
// are accepted.
func NewEngine(s store.Store, sender *send.Engine, logger *zap.Logger) *Engine {
	return &Engine{
		store:  s,
		send:   sender,
		logger: logger,
		jobs:   make(chan job, 64),
		stopCh: make(chan struct{}),
	}
}

// Start launches the worker pool. Calling it twice is a no-op.
func (e *Engine) Start(workers int) {
	e.startOnce.Do(func() {
		if workers <= 0 {
			workers = 2
		}
		for i := 0; i < workers; i++ {
			e.wg.Add(1)
			go e.worker()
		}
	})
}

// Stop drains the pool: queued jobs are abandoned in QUEUED state, the
// job currently running finishes its pass.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	e.wg.Wait()
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case j := <-e.jobs:
			e.runJob(j)
		}
	}
}

// StartJob records a new QUEUED job and hands it to the pool. The body
// is the reply content for every item; items with a saved draft fall
// back to it when the body is empty. StartJob returns the job id
// immediately; callers poll Progress for the outcome.
func (e *Engine) StartJob(ctx context.Context, userID string, messageIDs []string, body string) (string, error) {
	if len(messageIDs) == 0 {
		return "", ErrNoMessages
	}

	j := job{
		id:         uuid.NewString(),
		userID:     userID,
		messageIDs: messageIDs,
		body:       body,
	}

	err := e.store.CreateJob(ctx, model.BulkJob{
		ID:     j.id,
		UserID: userID,
		Kind:   model.JobKindBulkSend,
		Total:  len(messageIDs),
		Status: model.JobQueued,
	})
	if err != nil {
		return "", err
	}

	select {
	case e.jobs <- j:
	case <-e.stopCh:
		return "", errors.New("bulk engine is shutting down")
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return j.id, nil
}

// runJob processes the items sequentially in input order, recording
// each outcome as it lands. A per-item failure never aborts the job;
// the job always finishes DONE once the loop completes.
func (e *Engine) runJob(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := e.store.MarkJobRunning(ctx, j.id); err != nil {
		e.logger.Error("marking job running", zap.String("job_id", j.id), zap.Error(err))
		if failErr := e.store.MarkJobFailed(ctx, j.id, err.Error()); failErr != nil {
			e.logger.Error("marking job failed", zap.String("job_id", j.id), zap.Error(failErr))
		}
		return
	}

	for i, messageID := range j.messageIDs {
		res := model.JobResult{MessageID: messageID, OK: true}
		if _, err := e.send.SendReply(ctx, j.userID, messageID, "", j.body); err != nil {
			res.OK = false
			res.Error = err.Error()
		}

		if err := e.store.AppendJobResult(ctx, j.id, i, res); err != nil {
			e.logger.Error("recording job result",
				zap.String("job_id", j.id),
				zap.String("message_id", messageID),
				zap.Error(err))
		}
	}

	if err := e.store.MarkJobDone(ctx, j.id); err != nil {
		e.logger.Error("marking job done", zap.String("job_id", j.id), zap.Error(err))
	}
}

// Progress returns the poller snapshot for a job owned by the user.
func (e *Engine) Progress(ctx context.Context, userID, jobID string) (model.JobProgress, error) {
	jb, err := e.store.GetJob(ctx, jobID, userID)
	if err != nil {
		return model.JobProgress{}, err
	}
	results, err := e.store.GetJobResults(ctx, jobID)
	if err != nil {
		return model.JobProgress{}, err
	}
	return model.ProgressOf(*jb, results), nil
}

// BulkSendNow replies to the messages synchronously with the given
// body, grouping them by mailbox so each mailbox's SMTP connection is
// opened once. Results come back in input order; no job record is
// created.
func (e *Engine) BulkSendNow(ctx context.Context, userID string, messageIDs []string, body string) ([]model.JobResult, error) {
	if len(messageIDs) == 0 {
		return nil, ErrNoMessages
	}

	results := make([]model.JobResult, len(messageIDs))

	type item struct {
		index    int
		prepared *send.Prepared
	}
	groups := make(map[string][]item)
	var order []string

	for i, messageID := range messageIDs {
		results[i] = model.JobResult{MessageID: messageID, OK: true}

		p, err := e.send.Prepare(ctx, userID, messageID, "", body)
		if err != nil {
			results[i].OK = false
			results[i].Error = err.Error()
			continue
		}

		key := p.Mailbox.ID
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item{index: i, prepared: p})
	}

	for _, mailboxID := range order {
		items := groups[mailboxID]

		sender, err := e.send.Dial(ctx, items[0].prepared.Mailbox)
		if err != nil {
			for _, it := range items {
				results[it.index].OK = false
				results[it.index].Error = err.Error()
			}
			continue
		}

		for _, it := range items {
			if err := e.send.Deliver(ctx, sender, it.prepared); err != nil {
				results[it.index].OK = false
				results[it.index].Error = err.Error()
			}
		}

		if err := sender.Close(); err != nil {
			e.logger.Warn("closing SMTP connection", zap.String("mailbox_id", mailboxID), zap.Error(err))
		}
	}

	return results, nil
}
