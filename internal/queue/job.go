package queue

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	PriorityQueueKey = "priority_queue"
	DeadLetterKey    = "priority_queue_dlq"
)

const JobPublishChange = "publish_change"

type Job struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Payload   []byte `json:"payload"`
	Priority  int    `json:"priority"`
	Retry     int    `json:"retry"`
	MaxRetry  int    `json:"max_retry"`
	ErrorMsg  string `json:"error_msg,omitempty"`
	CreatedAt int64  `json:"created_at"`
	// RunAt is the unix millisecond time the job becomes due.
	RunAt    int64 `json:"run_at"`
	ExpireAt int64 `json:"expired_at"`
}

func (j Job) Expired(now time.Time) bool {
	return j.ExpireAt > 0 && now.UnixMilli() > j.ExpireAt
}

// Score orders the sorted set; higher priority jobs become due slightly earlier.
func (j Job) Score() float64 {
	return float64(j.RunAt - int64(j.Priority))
}

func Marshal(job Job) ([]byte, error) {
	return json.Marshal(job)
}

func Unmarshal(data []byte) (Job, error) {
	var job Job
	err := json.Unmarshal(data, &job)
	return job, err
}
