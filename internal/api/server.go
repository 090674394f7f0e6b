package api

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"drillx/internal/pipeline"
	"drillx/pkg/hashing/core"
	"drillx/pkg/hashing/methods/software"
)

// Backend computes the batches served by the gateway
type Backend interface {
	core.BatchHasher
	Name() string
	Capabilities() *core.Capabilities
}

// maxGatewayBatch caps batches when the backend reports no limit
const maxGatewayBatch = 1 << 20

// Server is the REST gateway in front of a backend
type Server struct {
	backend   Backend
	logger    logrus.FieldLogger
	startTime time.Time

	mu                sync.RWMutex
	totalBatches      uint64
	successfulBatches uint64
	failedBatches     uint64
	totalLanes        uint64
	solvedLanes       uint64
	totalLatencyNs    uint64
}

// NewServer creates a gateway over backend
func NewServer(backend Backend, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		backend:   backend,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Router builds the gin engine with every route
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	api := router.Group("/api/v1")
	{
		api.POST("/batch", s.handleBatch)
		api.POST("/verify", s.handleVerify)
		api.GET("/health", s.handleHealth)
		api.GET("/metrics", s.handleMetrics)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}

// handleBatch handles batch requests
func (s *Server) handleBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	challenge, err := hex.DecodeString(req.Challenge)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid hex challenge"})
		return
	}

	if err := s.checkBatchSize(req.BatchSize); err != nil {
		s.record(0, 0, 0, false)
		s.writeError(c, err, req.BatchSize)
		return
	}

	var nonces []byte
	if req.Nonces != "" {
		nonces, err = base64.StdEncoding.DecodeString(req.Nonces)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid base64 nonces"})
			return
		}
	} else {
		nonces = pipeline.NoncesFrom(req.StartNonce, int(req.BatchSize))
	}

	start := time.Now()
	digests, err := s.backend.ComputeBatch(c.Request.Context(), challenge, nonces, req.BatchSize)
	latency := time.Since(start)

	if err != nil {
		s.record(0, 0, latency, false)
		s.writeError(c, err, req.BatchSize)
		return
	}

	best, err := pipeline.BestOf(digests, nonces)
	if err != nil {
		s.record(0, 0, latency, false)
		s.writeError(c, err, req.BatchSize)
		return
	}

	resp := BatchResponse{
		Digests:   make([]string, 0, req.BatchSize),
		LatencyMs: float64(latency.Microseconds()) / 1000,
		Backend:   s.backend.Name(),
	}
	for lane := 0; lane < len(digests)/core.DigestSize; lane++ {
		digest := digests[lane*core.DigestSize : (lane+1)*core.DigestSize]
		resp.Digests = append(resp.Digests, hex.EncodeToString(digest))
		if sol, _ := core.DecodeDigest(digest); !sol.IsEmpty() {
			resp.SolvedLanes++
		}
	}
	if best.Found {
		resp.Best = &BestResponse{
			Lane:       best.Lane,
			Nonce:      best.Nonce,
			Difficulty: best.Difficulty,
			Solution:   best.Solution,
			Hash:       hex.EncodeToString(best.Hash[:]),
		}
	}

	s.record(uint64(req.BatchSize), uint64(resp.SolvedLanes), latency, true)
	c.JSON(http.StatusOK, resp)
}

// checkBatchSize rejects a batch before any per-lane buffer is built
func (s *Server) checkBatchSize(batchSize int32) error {
	if batchSize <= 0 {
		return core.NewConfigError("handleBatch", "batch size must be positive, got %d", batchSize)
	}
	limit := maxGatewayBatch
	if caps := s.backend.Capabilities(); caps != nil && caps.MaxBatchSize > 0 {
		limit = caps.MaxBatchSize
	}
	if int(batchSize) > limit {
		return core.NewConfigError("handleBatch", "batch size %d exceeds maximum %d", batchSize, limit)
	}
	return nil
}

// handleVerify checks a single digest against its challenge and nonce
func (s *Server) handleVerify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	challenge, err := hex.DecodeString(req.Challenge)
	if err != nil || len(challenge) != core.ChallengeSize {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("challenge must be %d hex-encoded bytes", core.ChallengeSize)})
		return
	}
	digest, err := hex.DecodeString(req.Digest)
	if err != nil || len(digest) != core.DigestSize {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("digest must be %d hex-encoded bytes", core.DigestSize)})
		return
	}

	nonce := core.NonceBytes(req.Nonce)
	if !software.VerifyDigest(challenge, nonce[:], digest) {
		c.JSON(http.StatusOK, VerifyResponse{Valid: false})
		return
	}

	solution, _ := core.DecodeDigest(digest)
	hash := solution.Hash(nonce[:])
	c.JSON(http.StatusOK, VerifyResponse{
		Valid:      true,
		Difficulty: core.Difficulty(hash),
		Hash:       hex.EncodeToString(hash[:]),
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:  "healthy",
		Backend: s.backend.Name(),
		Uptime:  time.Since(s.startTime).String(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		resp.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryUsedPercent = vm.UsedPercent
	}
	if n, err := cpu.Counts(true); err == nil {
		resp.LogicalCores = n
	}

	s.mu.RLock()
	total, failed := s.totalBatches, s.failedBatches
	s.mu.RUnlock()
	if total > 0 && failed == total {
		resp.Status = "degraded"
	}

	c.JSON(http.StatusOK, resp)
}

// handleMetrics handles metrics requests
func (s *Server) handleMetrics(c *gin.Context) {
	s.mu.RLock()
	resp := MetricsResponse{
		TotalBatches:      s.totalBatches,
		SuccessfulBatches: s.successfulBatches,
		FailedBatches:     s.failedBatches,
		TotalLanes:        s.totalLanes,
		SolvedLanes:       s.solvedLanes,
	}
	totalLatencyNs := s.totalLatencyNs
	s.mu.RUnlock()

	if resp.TotalBatches > 0 {
		resp.AverageLatencyMs = float64(totalLatencyNs) / float64(resp.TotalBatches) / 1e6
	}
	resp.Uptime = time.Since(s.startTime).String()
	resp.Backend = s.backend.Name()
	resp.Capabilities = s.backend.Capabilities()

	c.JSON(http.StatusOK, resp)
}

func (s *Server) record(lanes, solved uint64, latency time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalBatches++
	s.totalLatencyNs += uint64(latency.Nanoseconds())
	if !ok {
		s.failedBatches++
		return
	}
	s.successfulBatches++
	s.totalLanes += lanes
	s.solvedLanes += solved
}

func (s *Server) writeError(c *gin.Context, err error, batchSize int32) {
	resp := ErrorResponse{Error: err.Error()}
	code := http.StatusBadGateway

	if t, ok := core.ErrorTypeOf(err); ok {
		resp.Type = t.String()
		switch t {
		case core.ErrorConfig, core.ErrorInvalidNonce:
			code = http.StatusBadRequest
		case core.ErrorContextInit:
			code = http.StatusServiceUnavailable
		case core.ErrorComputeFault:
			code = http.StatusInternalServerError
		}
	}

	if code >= http.StatusInternalServerError {
		sentry.CaptureException(err)
	}
	s.logger.WithError(err).WithField("batch_size", batchSize).Warn("batch failed")
	c.JSON(code, resp)
}
