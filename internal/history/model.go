package history

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

type Record struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"index;not null" json:"session_id"`
	Transport string    `json:"transport"`
	Language  string    `json:"language,omitempty"`
	Text      string    `json:"text"`
	Format    string    `json:"format"`
	AudioMs   int64     `json:"audio_ms"`
	LatencyMs int64     `json:"latency_ms"`
	Status    Status    `gorm:"index" json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Record) TableName() string {
	return "transcriptions"
}

func (r *Record) LastRedisKey() string {
	return "parakeet:session:" + r.SessionID + ":last"
}

type Metrics struct {
	Date           string `json:"date"`
	Hour           int    `json:"hour"`
	Transcriptions int64  `json:"transcriptions"`
	Failures       int64  `json:"failures"`
	AudioMs        int64  `json:"audio_ms"`
	AvgLatencyMs   int64  `json:"avg_latency_ms"`
}

func MetricsRedisKey(date string, hour int) string {
	return "parakeet:metrics:" + date + ":" + strconv.Itoa(hour)
}
