// Package jobs は処理ジョブの記録と状態遷移を管理します。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store はジョブ記録の永続化ポートです。
type Store interface {
	// Create は新しいジョブを保存します。
	Create(ctx context.Context, job *Job) error
	// Finalize は終了状態への遷移を保存します。既に終了状態なら ErrTerminal を返します。
	Finalize(ctx context.Context, job *Job) error
	// Get は所有者が一致するジョブを返します。存在しない場合は nil, nil です。
	Get(ctx context.Context, jobID, ownerID string) (*Job, error)
	// List は所有者のジョブを新しい順に返します。
	List(ctx context.Context, ownerID string, limit int) ([]*Job, error)
}

// Tracker はジョブの開始と終了を記録します。
// 状態は processing から completed / failed のいずれか一方へ一度だけ遷移します。
type Tracker struct {
	store  Store
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewTracker は Tracker を初期化します。
func NewTracker(store Store, logger logrus.FieldLogger) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tracker{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Begin は processing 状態のジョブを作成して保存します。
func (t *Tracker) Begin(ctx context.Context, ownerID string, kind Kind, inputIDs []string, params map[string]string) (*Job, error) {
	now := t.now()
	if params == nil {
		params = map[string]string{}
	}
	job := &Job{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Kind:        kind,
		Status:      StatusProcessing,
		InputIDs:    append([]string(nil), inputIDs...),
		Parameters:  params,
		OutputPaths: []string{},
		CreatedAt:   now,
		StartedAt:   &now,
	}
	if err := t.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	t.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"kind":   kind,
		"owner":  ownerID,
	}).Info("job started")
	return job, nil
}

// Complete はジョブを completed にします。
// 出力が空の場合は成功扱いにせず failed にします。
func (t *Tracker) Complete(ctx context.Context, job *Job, outputPaths []string, processingTime time.Duration) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.Status.Terminal() {
		t.logger.WithFields(logrus.Fields{
			"job_id": job.ID,
			"status": job.Status,
		}).Error("complete called on terminal job")
		return nil
	}
	if len(outputPaths) == 0 {
		return t.Fail(ctx, job, "no output produced")
	}

	next := job.clone()
	next.Status = StatusCompleted
	next.OutputPaths = append([]string(nil), outputPaths...)
	next.Error = ""
	t.stamp(next, processingTime)
	return t.finalize(ctx, job, next)
}

// Fail はジョブを failed にします。既に終了状態の場合は何もしません。
func (t *Tracker) Fail(ctx context.Context, job *Job, message string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.Status.Terminal() {
		return nil
	}
	if message == "" {
		message = "unknown error"
	}

	next := job.clone()
	next.Status = StatusFailed
	next.OutputPaths = []string{}
	next.Error = message
	var elapsed time.Duration
	if job.StartedAt != nil {
		elapsed = t.now().Sub(*job.StartedAt)
	}
	t.stamp(next, elapsed)
	return t.finalize(ctx, job, next)
}

// Get は所有者のジョブを返します。
func (t *Tracker) Get(ctx context.Context, jobID, ownerID string) (*Job, error) {
	return t.store.Get(ctx, jobID, ownerID)
}

// List は所有者のジョブ一覧を返します。
func (t *Tracker) List(ctx context.Context, ownerID string, limit int) ([]*Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return t.store.List(ctx, ownerID, limit)
}

func (t *Tracker) stamp(job *Job, elapsed time.Duration) {
	now := t.now()
	if elapsed < 0 {
		elapsed = 0
	}
	seconds := elapsed.Seconds()
	job.CompletedAt = &now
	job.ProcessingTime = &seconds
}

func (t *Tracker) finalize(ctx context.Context, job, next *Job) error {
	entry := t.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"status": next.Status,
	})
	if err := t.store.Finalize(ctx, next); err != nil {
		if errors.Is(err, ErrTerminal) {
			entry.Error("job was finalized concurrently")
			return nil
		}
		return fmt.Errorf("failed to finalize job: %w", err)
	}
	*job = *next
	if next.Status == StatusFailed {
		entry.WithField("error", next.Error).Warn("job failed")
	} else {
		entry.WithField("outputs", len(next.OutputPaths)).Info("job completed")
	}
	return nil
}
