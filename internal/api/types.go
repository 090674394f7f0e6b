package api

import "drillx/pkg/hashing/core"

// BatchRequest asks for one batch. Nonces is the base64 nonce buffer; when
// it is empty the batch uses BatchSize consecutive nonces from StartNonce.
type BatchRequest struct {
	Challenge  string `json:"challenge" binding:"required"`
	Nonces     string `json:"nonces,omitempty"`
	StartNonce uint64 `json:"start_nonce,omitempty"`
	BatchSize  int32  `json:"batch_size"`
}

// BestResponse is the highest-difficulty lane of a batch
type BestResponse struct {
	Lane       int           `json:"lane"`
	Nonce      uint64        `json:"nonce"`
	Difficulty uint32        `json:"difficulty"`
	Solution   core.Solution `json:"solution"`
	Hash       string        `json:"hash"`
}

// BatchResponse carries one hex digest per lane
type BatchResponse struct {
	Digests     []string      `json:"digests"`
	SolvedLanes int           `json:"solved_lanes"`
	Best        *BestResponse `json:"best,omitempty"`
	LatencyMs   float64       `json:"latency_ms"`
	Backend     string        `json:"backend"`
}

// VerifyRequest checks one lane digest
type VerifyRequest struct {
	Challenge string `json:"challenge" binding:"required"`
	Nonce     uint64 `json:"nonce"`
	Digest    string `json:"digest" binding:"required"`
}

// VerifyResponse reports whether the digest is a valid solution
type VerifyResponse struct {
	Valid      bool   `json:"valid"`
	Difficulty uint32 `json:"difficulty"`
	Hash       string `json:"hash,omitempty"`
}

// HealthResponse describes the gateway and its host
type HealthResponse struct {
	Status            string  `json:"status"`
	Backend           string  `json:"backend"`
	Uptime            string  `json:"uptime"`
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	LogicalCores      int     `json:"logical_cores"`
}

// MetricsResponse holds gateway counters
type MetricsResponse struct {
	TotalBatches      uint64             `json:"total_batches"`
	SuccessfulBatches uint64             `json:"successful_batches"`
	FailedBatches     uint64             `json:"failed_batches"`
	TotalLanes        uint64             `json:"total_lanes"`
	SolvedLanes       uint64             `json:"solved_lanes"`
	AverageLatencyMs  float64            `json:"average_latency_ms"`
	Uptime            string             `json:"uptime"`
	Backend           string             `json:"backend"`
	Capabilities      *core.Capabilities `json:"capabilities"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}
