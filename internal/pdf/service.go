// Package pdf はPDFの結合・分割・圧縮・画像変換・OCRを実行し、
// 各処理をジョブとして記録したうえで成果物を組み立てます。
package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/documents"
	"github.com/yourusername/pdf-genie/internal/jobs"
	"github.com/yourusername/pdf-genie/internal/native"
)

// DocumentStore は処理対象ドキュメントの参照と状態更新を行います。
type DocumentStore interface {
	Find(ctx context.Context, id, ownerID string) (*documents.Document, error)
	SetStatus(ctx context.Context, ownerID string, ids []string, status documents.Status) error
}

// JobTracker はジョブの開始と終了を記録します。
type JobTracker interface {
	Begin(ctx context.Context, ownerID string, kind jobs.Kind, inputIDs []string, params map[string]string) (*jobs.Job, error)
	Complete(ctx context.Context, job *jobs.Job, outputPaths []string, processingTime time.Duration) error
	Fail(ctx context.Context, job *jobs.Job, message string) error
}

// Workspace はジョブ専用の出力ディレクトリを払い出します。
type Workspace interface {
	JobDir(jobID string) (string, error)
}

// Rasterizer はPDFをページ画像に変換します。
type Rasterizer interface {
	Render(ctx context.Context, pdfPath string, dpi int) ([]image.Image, error)
}

// Recognizer はページ画像からテキストを認識します。
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, lang string) (native.Recognition, error)
}

// SearchableRenderer はページ画像からテキストレイヤー付きPDFを生成します。
type SearchableRenderer interface {
	SearchablePDF(ctx context.Context, img image.Image, lang string) ([]byte, error)
}

// Compressor は外部ツールでPDFを圧縮します。
type Compressor interface {
	Compress(ctx context.Context, inputPath, outputPath, setting string) error
}

// OCRResultSaver はテキスト抽出結果を保存します。
type OCRResultSaver interface {
	Save(ctx context.Context, r *OCRResult) error
}

// Deps は Service の依存関係です。
type Deps struct {
	Documents  DocumentStore
	Jobs       JobTracker
	Workspace  Workspace
	Rasterizer Rasterizer
	Recognizer Recognizer
	Searchable SearchableRenderer
	// Compressor が nil の場合は pdfcpu で再書き出しします。
	Compressor Compressor
	OCRResults OCRResultSaver
	Logger     logrus.FieldLogger
}

// Service はPDF処理の実行とジョブ記録をまとめます。
type Service struct {
	docs       DocumentStore
	jobs       JobTracker
	workspace  Workspace
	rasterizer Rasterizer
	recognizer Recognizer
	searchable SearchableRenderer
	compressor Compressor
	ocrResults OCRResultSaver
	logger     logrus.FieldLogger
	now        func() time.Time
}

// NewService は Service を初期化します。
func NewService(deps Deps) (*Service, error) {
	if deps.Documents == nil {
		return nil, errors.New("document store is nil")
	}
	if deps.Jobs == nil {
		return nil, errors.New("job tracker is nil")
	}
	if deps.Workspace == nil {
		return nil, errors.New("workspace is nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		docs:       deps.Documents,
		jobs:       deps.Jobs,
		workspace:  deps.Workspace,
		rasterizer: deps.Rasterizer,
		recognizer: deps.Recognizer,
		searchable: deps.Searchable,
		compressor: deps.Compressor,
		ocrResults: deps.OCRResults,
		logger:     logger,
		now:        time.Now,
	}, nil
}

type executor func(ctx context.Context, req ExecRequest) (*ExecutionResult, error)

// run はジョブを開始して処理を実行し、必ず終了状態にしてから結果を返します。
func (s *Service) run(ctx context.Context, ownerID string, kind jobs.Kind, ids []string, params map[string]string, exec executor) (*Outcome, error) {
	job, err := s.jobs.Begin(ctx, ownerID, kind, ids, params)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Job: job}
	start := s.now()
	log := s.logger.WithFields(logrus.Fields{"job_id": job.ID, "kind": kind})

	s.setStatus(ctx, ownerID, ids, documents.StatusProcessing)

	result, err := s.execute(ctx, job, ownerID, ids, exec)
	if err == nil && (result == nil || len(result.Outputs) == 0) {
		err = apperr.Internal(errors.New("no output produced"))
	}
	// リクエストが中断されてもジョブは必ず終了状態にする
	finCtx := context.WithoutCancel(ctx)
	if err != nil {
		s.abort(finCtx, log, job, ownerID, ids, err)
		return outcome, err
	}

	if err := s.jobs.Complete(finCtx, job, result.Paths(), s.now().Sub(start)); err != nil {
		s.abort(finCtx, log, job, ownerID, ids, err)
		return outcome, err
	}
	s.setStatus(finCtx, ownerID, ids, documents.StatusCompleted)
	outcome.Result = result
	return outcome, nil
}

// abort はジョブと入力ドキュメントを failed にします。
func (s *Service) abort(ctx context.Context, log logrus.FieldLogger, job *jobs.Job, ownerID string, ids []string, cause error) {
	if ferr := s.jobs.Fail(ctx, job, apperr.Message(cause)); ferr != nil {
		log.WithError(ferr).Error("failed to record job failure")
	}
	s.setStatus(ctx, ownerID, ids, documents.StatusFailed)
	log.WithError(cause).WithField("error_kind", apperr.KindOf(cause)).Warn("operation failed")
}

func (s *Service) execute(ctx context.Context, job *jobs.Job, ownerID string, ids []string, exec executor) (result *ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("job_id", job.ID).Errorf("panic in executor: %v", r)
			result, err = nil, apperr.Internal(fmt.Errorf("panic: %v", r))
		}
	}()

	dir, err := s.workspace.JobDir(job.ID)
	if err != nil {
		return nil, err
	}
	return exec(ctx, ExecRequest{
		JobID:       job.ID,
		OwnerID:     ownerID,
		DocumentIDs: ids,
		OutputDir:   dir,
	})
}

func (s *Service) setStatus(ctx context.Context, ownerID string, ids []string, status documents.Status) {
	if err := s.docs.SetStatus(ctx, ownerID, ids, status); err != nil {
		s.logger.WithError(err).WithField("status", status).Warn("failed to update document status")
	}
}

// deliver は成功した処理の成果物を組み立てて Outcome に設定します。
func (s *Service) deliver(outcome *Outcome, kind jobs.Kind) (*Outcome, error) {
	d, err := Assemble(kind, outcome.Result.Outputs, s.now())
	if err != nil {
		return outcome, err
	}
	outcome.Deliverable = d
	return outcome, nil
}

// Redeliver は完了済みジョブの成果物を再度組み立てます。
func (s *Service) Redeliver(job *jobs.Job) (*Deliverable, error) {
	if job == nil || job.Status != jobs.StatusCompleted {
		return nil, apperr.Validation("JOB_NOT_COMPLETED", "ジョブが完了していないためダウンロードできません。")
	}
	outputs, err := outputsFromPaths(job.OutputPaths)
	if err != nil {
		return nil, err
	}
	return Assemble(job.Kind, outputs, s.now())
}
