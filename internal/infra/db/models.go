package db

import "time"

type ContentRecordModel struct {
	ContentHash     string `gorm:"primaryKey"`
	NormalizedHash  string `gorm:"index;not null"`
	PerceptualHash  string `gorm:"index;not null"`
	Owner           string `gorm:"index;not null"`
	Creator         string `gorm:"not null"`
	License         string `gorm:"not null"`
	PreviousVersion string `gorm:"index"`
	Platform        string
	MetadataJSON    []byte `gorm:"type:jsonb"`

	AnchorTxReference *string
	AnchorHeight      *int64
	AnchorAt          *time.Time

	CreatedAt time.Time `gorm:"not null"`
}

func (ContentRecordModel) TableName() string { return "content_records" }

type TransferEntryModel struct {
	ID          int64     `gorm:"primaryKey"`
	ContentHash string    `gorm:"index;not null"`
	FromOwner   string    `gorm:"not null"`
	ToOwner     string    `gorm:"not null"`
	TransferAt  time.Time `gorm:"not null"`
}

func (TransferEntryModel) TableName() string { return "transfer_history" }

type DetectionEventModel struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	SubmittedHash  string    `gorm:"index;not null"`
	MatchedLevel   string    `gorm:"not null"`
	MatchedRecord  string    `gorm:"index;not null"`
	CallerMetaJSON []byte    `gorm:"type:jsonb"`
	DetectedAt     time.Time `gorm:"index;not null"`
}

func (DetectionEventModel) TableName() string { return "duplicate_detections" }

type WebhookModel struct {
	ID                   string    `gorm:"type:uuid;primaryKey"`
	EndpointURL          string    `gorm:"not null"`
	SigningSecret        string    `gorm:"not null"`
	SubscribedEventsJSON []byte    `gorm:"type:jsonb;not null"`
	Enabled              bool      `gorm:"index;not null"`
	MaxRetries           int       `gorm:"not null"`
	RetryDelaySeconds    int       `gorm:"not null"`
	CreatedAt            time.Time `gorm:"not null"`
}

func (WebhookModel) TableName() string { return "webhooks" }

type WebhookDeliveryModel struct {
	ID             string     `gorm:"type:uuid;primaryKey"`
	WebhookID      string     `gorm:"type:uuid;index;not null"`
	EventID        string     `gorm:"index;not null"`
	EventType      string     `gorm:"not null"`
	Payload        []byte     `gorm:"type:jsonb;not null"`
	Status         string     `gorm:"index;not null"`
	AttemptCount   int        `gorm:"not null"`
	NextRetryAt    *time.Time `gorm:"index"`
	LastHTTPStatus int
	LastError      string
	ClaimedAt      *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (WebhookDeliveryModel) TableName() string { return "webhook_deliveries" }
