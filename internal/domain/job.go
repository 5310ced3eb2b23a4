package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether a job in this status can never transition again.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Job struct {
	ID             uuid.UUID
	Type           string
	Payload        []byte
	Status         JobStatus
	Priority       int
	ScheduledAt    time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	RetryCount     int
	MaxRetries     int
	ErrorMessage   *string
	ClaimedBy      *string
	ClaimExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UsageRecord is one daily aggregation bucket. The (Date, Provider, Service)
// triple is the identity; the remaining fields are increment-only accumulators.
type UsageRecord struct {
	Date          time.Time
	Provider      string
	Service       string
	UsageCount    int64
	TokensUsed    int64
	EstimatedCost decimal.Decimal
	UpdatedAt     time.Time
}

type WorkerInfo struct {
	ID            uuid.UUID
	Hostname      string
	LastHeartbeat time.Time
	Status        string
	RegisteredAt  time.Time
}
