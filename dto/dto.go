package dto

import "github.com/google/uuid"

// VideoRequest is an accepted generation request with defaults applied.
type VideoRequest struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
	Style    string `json:"style"`
}

// GenerationMessage is the job handed to a background task, in process or over RabbitMQ.
type GenerationMessage struct {
	GenerationId uuid.UUID    `json:"generationId"`
	Request      VideoRequest `json:"request"`
}

type GenerateVideoRequest struct {
	Prompt   string  `json:"prompt"`
	Duration *int    `json:"duration,omitempty"`
	Style    *string `json:"style,omitempty"`
}

type GenerateVideoResponse struct {
	Status       string `json:"status"`
	GenerationId string `json:"generation_id"`
	Message      string `json:"message"`
}

type StatusResponse struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	VideoURL string `json:"video_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status            string          `json:"status"`
	Timestamp         float64         `json:"timestamp"`
	APIsAvailable     map[string]bool `json:"apis_available"`
	ActiveGenerations int             `json:"active_generations"`
}

type ProviderInfo struct {
	Description string `json:"description"`
	FreeTier    string `json:"free_tier"`
	Signup      string `json:"signup"`
	Available   bool   `json:"available"`
}

type APIInfoResponse struct {
	FreeAPIs map[string]ProviderInfo `json:"free_apis"`
}

type CleanupResponse struct {
	Cleaned   int `json:"cleaned"`
	Remaining int `json:"remaining"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}
