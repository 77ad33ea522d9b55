package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeExpiryNotice JobType = "expiry_notice"
	JobTypeUsageFlush   JobType = "usage_flush"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ExpiryNoticeJobPayload asks for one "your plan ends soon" mail. EndsAt is
// the window end seen by the scan; a renewed window no longer matches it.
type ExpiryNoticeJobPayload struct {
	EntitlementID uint      `json:"entitlement_id"`
	CompanyID     uint      `json:"company_id"`
	Feature       string    `json:"feature"`
	EndsAt        time.Time `json:"ends_at"`
	DaysLeft      int       `json:"days_left"`
}

// ToMap converts the payload to a map for storage
func (p ExpiryNoticeJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"entitlement_id": p.EntitlementID,
		"company_id":     p.CompanyID,
		"feature":        p.Feature,
		"ends_at":        p.EndsAt.UTC().Format(time.RFC3339Nano),
		"days_left":      p.DaysLeft,
	}
}

func ExpiryNoticeJobPayloadFromMap(data map[string]interface{}) (*ExpiryNoticeJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload ExpiryNoticeJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
