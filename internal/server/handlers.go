package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/trackchain/trackway/internal/audit/domain"
	batchdomain "github.com/trackchain/trackway/internal/batch/domain"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	lifecycledomain "github.com/trackchain/trackway/internal/lifecycle/domain"
	"github.com/trackchain/trackway/internal/operations"
	participantdomain "github.com/trackchain/trackway/internal/participant/domain"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
	"go.uber.org/fx"
)

type ServerParams struct {
	fx.In

	Engine       *gin.Engine
	Operations   *operations.Service
	Shards       sharddomain.Service
	Participants participantdomain.Service
	Lifecycle    lifecycledomain.Service
	Batches      batchdomain.Service
	AuditSvc     auditdomain.Service
}

type Server struct {
	engine       *gin.Engine
	operations   *operations.Service
	shards       sharddomain.Service
	participants participantdomain.Service
	lifecycle    lifecycledomain.Service
	batches      batchdomain.Service
	auditSvc     auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Engine,
		operations:   p.Operations,
		shards:       p.Shards,
		participants: p.Participants,
		lifecycle:    p.Lifecycle,
		batches:      p.Batches,
		auditSvc:     p.AuditSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/operations", s.submitOperation)
	v1.GET("/stats", s.systemStats)

	v1.POST("/shards", s.createShard)
	v1.GET("/shards", s.listShards)
	v1.GET("/shards/:id", s.getShard)

	v1.POST("/participants", s.createParticipant)
	v1.GET("/participants", s.listParticipants)
	v1.GET("/participants/:id", s.getParticipant)

	v1.POST("/products", s.createProduct)
	v1.GET("/products", s.findProducts)
	v1.GET("/products/:id", s.getProduct)
	v1.GET("/products/:id/history", s.getProductHistory)
	v1.POST("/products/:id/advance", s.advanceStage)
	v1.POST("/products/:id/quality-checks", s.addQualityCheck)
	v1.POST("/products/:id/temperatures", s.recordTemperatures)
	v1.POST("/products/:id/recall", s.recallProduct)
	v1.POST("/transfers", s.batchTransfer)

	v1.POST("/batches", s.createBatch)
	v1.GET("/batches/estimate", s.estimateSavings)
	v1.GET("/batches/:id", s.getBatch)
	v1.POST("/batches/:id/process", s.processBatch)

	v1.GET("/audit-logs", s.listAuditLogs)
}

func parseID(c *gin.Context, param string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(param))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) submitOperation(c *gin.Context) {
	var req operations.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	res, err := s.operations.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) systemStats(c *gin.Context) {
	stats, err := s.operations.GetSystemStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) createShard(c *gin.Context) {
	var req sharddomain.CreateShardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	res, err := s.shards.CreateShard(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) listShards(c *gin.Context) {
	if raw := c.Query("type"); raw != "" {
		t, err := sharddomain.ParseShardType(raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		shards, err := s.shards.ListByType(c.Request.Context(), t)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"shards": shards})
		return
	}

	shards, err := s.shards.ListAll(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shards": shards})
}

func (s *Server) getShard(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := s.shards.GetShard(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) createParticipant(c *gin.Context) {
	var req participantdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	res, err := s.participants.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) listParticipants(c *gin.Context) {
	items, err := s.participants.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": items})
}

func (s *Server) getParticipant(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, err := s.participants.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) createProduct(c *gin.Context) {
	var req lifecycledomain.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	res, err := s.lifecycle.CreateProduct(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) findProducts(c *gin.Context) {
	batchNumber := c.Query("batch_number")
	items, err := s.lifecycle.FindByBatchNumber(c.Request.Context(), batchNumber)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": items})
}

func (s *Server) getProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, err := s.lifecycle.GetProduct(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) getProductHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	history, err := s.lifecycle.GetHistory(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *Server) advanceStage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req lifecycledomain.AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.ProductID = id
	res, err := s.lifecycle.AdvanceStage(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) addQualityCheck(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req lifecycledomain.QualityCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.ProductID = id
	res, err := s.lifecycle.AddQualityCheck(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) recordTemperatures(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req lifecycledomain.TemperatureBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.ProductID = id
	res, err := s.lifecycle.RecordTemperatureBatch(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) recallProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req lifecycledomain.RecallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.ProductID = id
	res, err := s.lifecycle.RecallProduct(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) batchTransfer(c *gin.Context) {
	var req lifecycledomain.BatchTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	res, err := s.lifecycle.BatchTransfer(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) createBatch(c *gin.Context) {
	var req batchdomain.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	res, err := s.batches.CreateBatch(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) estimateSavings(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "0"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	kind := ledgerdomain.Kind(c.Query("operation_type"))
	estimate, err := s.batches.EstimateSavings(kind, count)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, estimate)
}

func (s *Server) getBatch(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	batch, err := s.batches.GetBatch(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (s *Server) processBatch(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ActorID snowflake.ID `json:"actor_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	res, err := s.batches.ProcessBatch(c.Request.Context(), id, req.ActorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) listAuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListRequest{
		Action:     c.Query("action"),
		TargetType: c.Query("target_type"),
		TargetID:   c.Query("target_id"),
		Limit:      limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": items})
}
