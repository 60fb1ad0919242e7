package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/fincore-risk/internal/application"
	"github.com/turtacn/fincore-risk/internal/application/dto"
	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/internal/infrastructure/datasource"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
	"github.com/turtacn/fincore-risk/pkg/utils"
)

// maxPassBodyBytes caps the inline records of one pass request.
const maxPassBodyBytes = 16 << 20

// RiskHandler 风险 HTTP 处理器
type RiskHandler struct {
	assessment application.RiskAssessmentService
	oracle     application.RiskOracle
	logger     logger.Logger
}

// NewRiskHandler 创建风险处理器
func NewRiskHandler(assessment application.RiskAssessmentService, oracle application.RiskOracle, log logger.Logger) *RiskHandler {
	return &RiskHandler{
		assessment: assessment,
		oracle:     oracle,
		logger:     log.WithComponent("risk_handler"),
	}
}

// RunPass 执行一次风险计算
// POST /api/v1/risk/passes
//
// The body is a JSON document with entities and licenses. An empty body runs the
// pass against the configured data source.
func (h *RiskHandler) RunPass(c *gin.Context) {
	ctx := c.Request.Context()

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxPassBodyBytes))
	if err != nil {
		h.handleError(c, errors.ErrInvalidRequest("request body is unreadable or too large").WithCause(err), "run_pass")
		return
	}

	req := &dto.RunPassRequest{}
	if len(bytes.TrimSpace(raw)) > 0 {
		doc, err := datasource.Decode(raw, true)
		if err != nil {
			h.handleError(c, err, "run_pass")
			return
		}
		req.Entities, req.Licenses = doc.Entities, doc.Licenses
	}

	result, err := h.runPass(c, req)
	if err != nil {
		h.handleError(c, err, "run_pass")
		return
	}

	h.logger.Info(ctx, "Risk pass completed", logger.Fields{
		"snapshot_id": result.Snapshot.ID,
		"profiles":    len(result.Snapshot.Profiles),
		"alerts":      len(result.Alerts),
		"excluded":    len(result.Excluded),
	})
	c.JSON(http.StatusCreated, dto.SuccessResponse(dto.NewPassResponse(result), traceID(c)))
}

func (h *RiskHandler) runPass(c *gin.Context, req *dto.RunPassRequest) (*service.Result, error) {
	if !req.HasRecords() {
		return h.assessment.RunFromSource(c.Request.Context())
	}
	return h.assessment.RunPass(c.Request.Context(), req.Entities, req.Licenses)
}

// ListProfiles 获取最新快照中的全部风险画像
// GET /api/v1/risk/entities
func (h *RiskHandler) ListProfiles(c *gin.Context) {
	snapshot, err := h.oracle.LatestProfiles(c.Request.Context())
	if err != nil {
		h.handleError(c, err, "list_profiles")
		return
	}

	resp := &dto.ProfileListResponse{Profiles: []models.EntityRiskProfile{}}
	if snapshot != nil {
		takenAt := snapshot.TakenAt
		resp.SnapshotID = snapshot.ID
		resp.TakenAt = &takenAt
		resp.Profiles = snapshot.Profiles
	}
	resp.Count = len(resp.Profiles)
	c.JSON(http.StatusOK, dto.SuccessResponse(resp, traceID(c)))
}

// GetProfile 获取单个实体的最新风险画像
// GET /api/v1/risk/entities/:entity_id
func (h *RiskHandler) GetProfile(c *gin.Context) {
	entityID := strings.TrimSpace(c.Param("entity_id"))
	if entityID == "" {
		h.handleError(c, errors.ErrInvalidRequest("entity_id required"), "get_profile")
		return
	}

	profile, err := h.oracle.GetEntityRisk(c.Request.Context(), entityID)
	if err != nil {
		h.handleError(c, err, "get_profile")
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse(profile, traceID(c)))
}

// ListAlerts 查询告警时间线
// GET /api/v1/alerts?entity_id=&limit=
func (h *RiskHandler) ListAlerts(c *gin.Context) {
	var req dto.AlertListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.handleError(c, errors.ErrInvalidRequest("invalid query parameters").WithCause(err), "list_alerts")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		h.handleError(c, err, "list_alerts")
		return
	}

	alerts, err := h.oracle.ListAlerts(c.Request.Context(), req.EntityID, req.Limit)
	if err != nil {
		h.handleError(c, err, "list_alerts")
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse(&dto.AlertListResponse{Alerts: alerts, Count: len(alerts)}, traceID(c)))
}

// Classify 将分数或严重级别映射到风险等级
// POST /api/v1/classify
func (h *RiskHandler) Classify(c *gin.Context) {
	var req dto.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleError(c, errors.ErrInvalidRequest("malformed classify request").WithCause(err), "classify")
		return
	}
	if (req.Score == nil) == (req.Severity == nil) {
		h.handleError(c, errors.ErrInvalidRequest("exactly one of score and severity is required"), "classify")
		return
	}

	classifier := h.assessment.Classifier()
	var band constants.Band
	if req.Score != nil {
		band = classifier.ClassifyScore(*req.Score)
	} else {
		band = classifier.ClassifySeverity(*req.Severity)
	}

	c.JSON(http.StatusOK, dto.SuccessResponse(&dto.ClassifyResponse{
		Band:       band,
		LowerBound: classifier.LowerBound(band),
	}, traceID(c)))
}

// handleError 统一处理错误
func (h *RiskHandler) handleError(c *gin.Context, err error, operation string) {
	ctx := c.Request.Context()
	riskErr, ok := errors.AsRiskError(err)
	switch {
	case !ok || riskErr.HTTPStatus() >= http.StatusInternalServerError:
		h.logger.Error(ctx, "Risk operation failed", err, logger.Fields{"operation": operation})
		_ = c.Error(err)
	default:
		h.logger.Warn(ctx, "Risk request rejected", logger.Fields{
			"operation":  operation,
			"error_code": string(riskErr.Code()),
			"error":      riskErr.Error(),
		})
	}

	status, body := dto.ErrorResponse(err, traceID(c))
	c.JSON(status, body)
}

func traceID(c *gin.Context) string {
	return c.GetString(string(constants.ContextKeyTraceID))
}
