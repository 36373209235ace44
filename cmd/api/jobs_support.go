package main

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/auth"
	"github.com/yourusername/pdf-genie/internal/config"
	"github.com/yourusername/pdf-genie/internal/database"
	"github.com/yourusername/pdf-genie/internal/jobs"
	"github.com/yourusername/pdf-genie/internal/pdf"
)

// jobReader はジョブ記録を所有者単位で参照します。
type jobReader interface {
	Get(ctx context.Context, jobID, ownerID string) (*jobs.Job, error)
	List(ctx context.Context, ownerID string, limit int) ([]*jobs.Job, error)
}

// redeliverer は完了済みジョブの成果物を組み立て直します。
type redeliverer interface {
	Redeliver(job *jobs.Job) (*pdf.Deliverable, error)
}

// jobResponse は出力ファイルをサーバー上のパスではなくファイル名で返します。
type jobResponse struct {
	*jobs.Job
	OutputFiles []string `json:"output_files"`
}

func newJobResponse(job *jobs.Job) jobResponse {
	names := make([]string, 0, len(job.OutputPaths))
	for _, p := range job.OutputPaths {
		names = append(names, filepath.Base(p))
	}
	return jobResponse{Job: job, OutputFiles: names}
}

var errJobNotFound = apperr.NotFound("JOB_NOT_FOUND", "指定されたジョブは存在しません。")

// setupJobStore は設定に応じてジョブ記録の保存先を選びます。
func setupJobStore(cfg *config.Config, db *database.DB) (jobs.Store, func() error, error) {
	if cfg.JobStore != "redis" {
		return jobs.NewSQLStore(db), nil, nil
	}

	opt, err := redis.ParseURL(cfg.JobRedisURL)
	if err != nil {
		return nil, nil, err
	}
	redisClient := redis.NewClient(opt)
	ttl := time.Duration(cfg.JobRecordTTLHours) * time.Hour
	return jobs.NewRedisStore(redisClient, ttl), redisClient.Close, nil
}

func jobListHandler(reader jobReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser(c)
		if user == nil {
			apperr.Respond(c, auth.ErrUnauthenticated)
			return
		}

		limit, _ := strconv.Atoi(c.Query("limit"))
		list, err := reader.List(c.Request.Context(), user.ID, limit)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		resp := make([]jobResponse, 0, len(list))
		for _, job := range list {
			resp = append(resp, newJobResponse(job))
		}
		c.JSON(http.StatusOK, resp)
	}
}

func jobStatusHandler(reader jobReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := loadJob(c, reader)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, newJobResponse(job))
	}
}

func jobDownloadHandler(reader jobReader, svc redeliverer) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := loadJob(c, reader)
		if !ok {
			return
		}

		d, err := svc.Redeliver(job)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		if err := pdf.StreamDeliverable(c, job.ID, d, "ジョブの成果物の読み込みに失敗しました"); err != nil {
			apperr.Respond(c, err)
		}
	}
}

func loadJob(c *gin.Context, reader jobReader) (*jobs.Job, bool) {
	user := auth.CurrentUser(c)
	if user == nil {
		apperr.Respond(c, auth.ErrUnauthenticated)
		return nil, false
	}

	jobID := strings.TrimSpace(c.Param("id"))
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "jobId を指定してください。",
		})
		return nil, false
	}

	job, err := reader.Get(c.Request.Context(), jobID, user.ID)
	if err != nil {
		apperr.Respond(c, err)
		return nil, false
	}
	if job == nil {
		apperr.Respond(c, errJobNotFound)
		return nil, false
	}
	return job, true
}
