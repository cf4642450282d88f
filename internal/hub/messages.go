package hub

import (
	"encoding/json"
	"time"
)

// Wire message kinds. Outbound kinds are produced by the hub; inbound
// kinds are accepted from observer sessions. toggle_recognition flows
// both ways: observers send it and the hub re-broadcasts it.
const (
	KindDashboardData     = "dashboard_data"
	KindSystemStatus      = "system_status"
	KindRecognitionResult = "recognition_result"
	KindAudioLevel        = "audio_level"
	KindDeviceUpdate      = "device_update"
	KindHeartbeat         = "heartbeat"
	KindError             = "error"

	KindPing                 = "ping"
	KindRequestDashboardData = "request_dashboard_data"
	KindRequestMetricsUpdate = "request_metrics_update"
	KindToggleRecognition    = "toggle_recognition"
)

// SystemMetrics is the sampled host state shown on the dashboard.
// CPU and memory are percentages rounded to one decimal.
type SystemMetrics struct {
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	Uptime      string  `json:"uptime"`
	Status      string  `json:"status"`
}

// RecognitionStats summarises the pipeline for the dashboard.
type RecognitionStats struct {
	TotalChunks      int64   `json:"total_chunks"`
	VoiceChunks      int64   `json:"voice_chunks"`
	Errors           int64   `json:"errors"`
	MeanProcessingMs float64 `json:"mean_processing_ms"`
	VoiceRatio       float64 `json:"voice_ratio"`
	LatencyP50Ms     float64 `json:"latency_p50_ms"`
	LatencyP95Ms     float64 `json:"latency_p95_ms"`
	EnrolledSpeakers int     `json:"enrolled_speakers"`
	ModelMode        string  `json:"model_mode"`
	Enabled          bool    `json:"recognition_enabled"`
}

// AudioMetrics carries the most recent normalised input level (0..1).
type AudioMetrics struct {
	InputLevel float64 `json:"input_level"`
}

// DeviceCount counts the connected sessions per role.
type DeviceCount struct {
	Ingest    int `json:"ingest"`
	Observers int `json:"observers"`
}

// SpeakerSighting is the last recognition outcome shown as the current
// speaker. Known is false when the pipeline reported Unknown with a
// near-miss confidence.
type SpeakerSighting struct {
	Speaker    string    `json:"speaker"`
	Confidence float64   `json:"confidence"`
	Known      bool      `json:"known"`
	Timestamp  time.Time `json:"timestamp"`
}

// DashboardSnapshot is the full dashboard state, sent to observers on
// connect and on request_dashboard_data.
type DashboardSnapshot struct {
	SystemStatus     SystemMetrics    `json:"system_status"`
	RecognitionStats RecognitionStats `json:"recognition_stats"`
	AudioMetrics     AudioMetrics     `json:"audio_metrics"`
	DeviceCount      DeviceCount      `json:"device_count"`
	CurrentSpeaker   *SpeakerSighting `json:"current_speaker,omitempty"`
}

// inboundMessage is the envelope for observer requests. Timestamp is
// kept raw so heartbeat replies echo whatever the client sent.
type inboundMessage struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Paused    bool            `json:"paused,omitempty"`
}

type dashboardDataMessage struct {
	Type string            `json:"type"`
	Data DashboardSnapshot `json:"data"`
}

type systemStatusMessage struct {
	Type string        `json:"type"`
	Data SystemMetrics `json:"data"`
}

type recognitionResultMessage struct {
	Type       string    `json:"type"`
	Speaker    string    `json:"speaker"`
	Confidence float64   `json:"confidence"`
	Known      bool      `json:"known"`
	DeviceID   string    `json:"device_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type audioLevelMessage struct {
	Type      string    `json:"type"`
	Level     float64   `json:"level"`
	DeviceID  string    `json:"device_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type deviceUpdateMessage struct {
	Type      string      `json:"type"`
	DeviceID  string      `json:"device_id"`
	Status    string      `json:"status"`
	Devices   DeviceCount `json:"devices"`
	Timestamp time.Time   `json:"timestamp"`
}

type heartbeatMessage struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

type toggleMessage struct {
	Type   string `json:"type"`
	Paused bool   `json:"paused"`
}

type errorMessage struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
