package jobs

import (
	"errors"
	"time"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal は終了状態かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind は処理の種類です。
type Kind string

const (
	KindMerge    Kind = "merge"
	KindSplit    Kind = "split"
	KindCompress Kind = "compress"
	KindConvert  Kind = "convert"
	KindOCR      Kind = "ocr"
)

// ErrTerminal は終了状態のジョブを更新しようとした場合に返されます。
var ErrTerminal = errors.New("job is already in a terminal state")

// Job は1回の処理実行の記録です。
type Job struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"user_id"`
	Kind           Kind              `json:"job_type"`
	Status         Status            `json:"status"`
	InputIDs       []string          `json:"input_files"`
	Parameters     map[string]string `json:"parameters"`
	OutputPaths    []string          `json:"output_files"`
	Error          string            `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	ProcessingTime *float64          `json:"processing_time,omitempty"`
}

func (j *Job) clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.InputIDs = append([]string(nil), j.InputIDs...)
	c.OutputPaths = append([]string(nil), j.OutputPaths...)
	if j.Parameters != nil {
		c.Parameters = make(map[string]string, len(j.Parameters))
		for k, v := range j.Parameters {
			c.Parameters[k] = v
		}
	}
	return &c
}
