package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeHarvest         JobType = "harvest"
	JobTypeWebhookDelivery JobType = "webhook_delivery"
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

// HarvestJobPayload names the entry to harvest and the MetadataRetrieval
// event that records the run
type HarvestJobPayload struct {
	ClientURL string `json:"client_url"`
	EventUUID string `json:"event_uuid"`
}

// ToMap converts the payload to a map for storage
func (p HarvestJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"client_url": p.ClientURL,
		"event_uuid": p.EventUUID,
	}
}

// HarvestJobPayloadFromMap creates a payload from a map
func HarvestJobPayloadFromMap(data map[string]interface{}) (*HarvestJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload HarvestJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// WebhookDeliveryJobPayload names the WebhookTrigger event to deliver
type WebhookDeliveryJobPayload struct {
	EventUUID string `json:"event_uuid"`
}

// ToMap converts the payload to a map for storage
func (p WebhookDeliveryJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_uuid": p.EventUUID,
	}
}

// WebhookDeliveryJobPayloadFromMap creates a payload from a map
func WebhookDeliveryJobPayloadFromMap(data map[string]interface{}) (*WebhookDeliveryJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload WebhookDeliveryJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// IsFinalAttempt reports whether a failure of the running attempt is permanent
func (j *Job) IsFinalAttempt() bool {
	return j.RetryCount+1 >= j.MaxRetries
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
