package models

import "time"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string    `json:"error" example:"Invalid RUC format"`
	Message   string    `json:"message" example:"RUC must contain exactly 13 digits"`
	Code      string    `json:"code,omitempty" example:"INVALID_RUC"`
	Timestamp time.Time `json:"timestamp" example:"2025-01-15T10:30:00Z"`
	Path      string    `json:"path" example:"/api/v1/invoices/download"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status" example:"healthy"`
	Timestamp time.Time              `json:"timestamp" example:"2025-01-15T10:30:00Z"`
	Version   string                 `json:"version" example:"1.0.0"`
	Services  map[string]ServiceInfo `json:"services"`
	Uptime    string                 `json:"uptime" example:"2h30m45s"`
}

// ServiceInfo represents individual service health
type ServiceInfo struct {
	Status         string    `json:"status" example:"healthy"`
	LastCheck      time.Time `json:"last_check" example:"2025-01-15T10:30:00Z"`
	ResponseTimeMs int64     `json:"response_time_ms" example:"15"`
	Error          string    `json:"error,omitempty"`
}

// DownloadRequest asks for the invoices of one taxpayer
type DownloadRequest struct {
	RUC       string  `json:"ruc" binding:"required" example:"1790011674001"`
	StartDate string  `json:"start_date,omitempty" example:"2025-01-01"`
	Mode      RunMode `json:"mode,omitempty" example:"full"`
}

// DownloadAccepted is returned when a run has been queued
type DownloadAccepted struct {
	RunID     string    `json:"run_id" example:"5f0c6a8e-0c55-4a57-9c1e-7c1b0d0b6f55"`
	RUC       string    `json:"ruc" example:"1790011674001"`
	Status    RunState  `json:"status" example:"queued"`
	StatusURL string    `json:"status_url" example:"/api/v1/invoices/runs/1790011674001"`
	QueuedAt  time.Time `json:"queued_at"`
}

// RunState is the lifecycle of a run as tracked by the status cache
type RunState string

const (
	RunQueued   RunState = "queued"
	RunRunning  RunState = "running"
	RunFinished RunState = "finished"
)

// RunStatus is the last known state of a taxpayer's run
type RunStatus struct {
	RunID     string     `json:"run_id"`
	RUC       string     `json:"ruc"`
	State     RunState   `json:"state"`
	UpdatedAt time.Time  `json:"updated_at"`
	Result    *RunResult `json:"result,omitempty"`
}

// Error codes returned by the API
const (
	ErrorCodeInvalidRUC         = "INVALID_RUC"
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"
	ErrorCodeRunInProgress      = "RUN_IN_PROGRESS"
	ErrorCodeRunNotFound        = "RUN_NOT_FOUND"
	ErrorCodeNoCredentials      = "NO_CREDENTIALS"
	ErrorCodeLoginFailed        = "LOGIN_FAILED"
	ErrorCodeChallengeExhausted = "CHALLENGE_EXHAUSTED"
	ErrorCodeInternalError      = "INTERNAL_ERROR"
	ErrorCodeUnauthorized       = "UNAUTHORIZED"
	ErrorCodeCompanyNotFound    = "COMPANY_NOT_FOUND"
)

// CompanyCredentialsRequest creates or updates the portal credentials of a company
type CompanyCredentialsRequest struct {
	CompanyName string `json:"company_name" binding:"required" example:"ACME S.A."`
	RUC         string `json:"ruc" binding:"required" example:"1790011674001"`
	Username    string `json:"username" binding:"required" example:"1790011674001"`
	Password    string `json:"password" binding:"required" example:"secret"`
}

// PasswordUpdateRequest replaces the stored portal password of a company
type PasswordUpdateRequest struct {
	Password string `json:"password" binding:"required" example:"new-secret"`
}

// CompanyList is the response of the company listing
type CompanyList struct {
	Data  []Company `json:"data"`
	Count int       `json:"count" example:"1"`
}

// MetricsResponse represents the metrics endpoint response
type MetricsResponse struct {
	Services  map[string]interface{} `json:"services"`
	System    SystemMetrics          `json:"system"`
	Timestamp time.Time              `json:"timestamp"`
}

// SystemMetrics represents process metrics
type SystemMetrics struct {
	MemoryAllocMB float64 `json:"memory_alloc_mb" example:"42.5"`
	MemorySysMB   float64 `json:"memory_sys_mb" example:"71.3"`
	Goroutines    int     `json:"goroutines" example:"24"`
	NumGC         uint32  `json:"num_gc" example:"12"`
}
