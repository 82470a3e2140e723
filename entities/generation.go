package entities

import (
	"time"

	"github.com/google/uuid"
	"video-relay/constant"
)

type Generation struct {
	ID          uuid.UUID                 `json:"id"`
	Prompt      string                    `json:"prompt"`
	Status      constant.GenerationStatus `json:"status"`
	Progress    int                       `json:"progress"`
	VideoURL    string                    `json:"video_url,omitempty"`
	Provider    constant.ProviderName     `json:"provider,omitempty"`
	Error       string                    `json:"error,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
}

// GenerationUpdate carries the fields to merge into a Generation. Nil fields are left untouched.
type GenerationUpdate struct {
	Status      *constant.GenerationStatus
	Progress    *int
	VideoURL    *string
	Provider    *constant.ProviderName
	Error       *string
	CompletedAt *time.Time
}
