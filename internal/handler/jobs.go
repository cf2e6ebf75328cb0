// Package handler 提供HTTP请求处理器
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fpapale/schedulai/internal/config"
	"github.com/fpapale/schedulai/internal/orchestrator"
	"github.com/fpapale/schedulai/internal/repository"
	apperrors "github.com/fpapale/schedulai/pkg/errors"
	"github.com/fpapale/schedulai/pkg/model"
)

// JobHandler 求解任务处理器
type JobHandler struct {
	cfg  *config.Config
	orch *orchestrator.Orchestrator
	repo repository.JobRepositoryInterface
}

// NewJobHandler 创建任务处理器
func NewJobHandler(cfg *config.Config, orch *orchestrator.Orchestrator, repo repository.JobRepositoryInterface) *JobHandler {
	return &JobHandler{cfg: cfg, orch: orch, repo: repo}
}

// SubmitResponse 任务受理响应
type SubmitResponse struct {
	JobID string `json:"job_id"`
}

// StatusResponse 任务状态响应。Bound 仅在终态携带
type StatusResponse struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
	Bound  *int64          `json:"bound,omitempty"`
}

// ValidateRequest 校验请求
type ValidateRequest struct {
	Spec json.RawMessage `json:"spec"`
}

// ValidateResponse 校验响应
type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Routes 分派 /api/v1/jobs 前缀下的请求：
// POST /api/v1/jobs、GET /api/v1/jobs/{id}、GET /api/v1/jobs/{id}/result
func (h *JobHandler) Routes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/jobs"), "/")
	if rest == "" {
		h.Submit(w, r)
		return
	}

	if r.Method != http.MethodGet {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "仅支持GET方法"))
		return
	}

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1:
		h.Status(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "result":
		h.Result(w, r, parts[0])
	default:
		respondError(w, apperrors.NotFound("接口", r.URL.Path))
	}
}

// Submit 受理求解任务：同步校验通过返回 202 与任务标识，
// 校验违规返回 422 与完整错误列表
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req orchestrator.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.Wrap(err, apperrors.CodeInvalidInput, "解析请求失败"))
		return
	}

	if verrs := h.validateEnvelope(&req); verrs.HasErrors() {
		respondValidationErrors(w, verrs)
		return
	}

	id, verrs, err := h.orch.Submit(r.Context(), req)
	if verrs != nil {
		respondValidationErrors(w, verrs)
		return
	}
	if err != nil {
		respondError(w, asAppError(err, "提交任务失败"))
		return
	}

	respondJSON(w, http.StatusAccepted, SubmitResponse{JobID: id})
}

// validateEnvelope 校验提交信封的求解参数。
// 规格文档本身的校验由编排器完成，这里只管配置边界
func (h *JobHandler) validateEnvelope(req *orchestrator.SubmitRequest) *apperrors.ValidationErrors {
	verrs := &apperrors.ValidationErrors{}
	if len(req.Spec) == 0 {
		verrs.Add("spec", "不能为空")
	}
	if req.MaxTimeSeconds < 0 {
		verrs.Add("max_time_seconds", "须为不小于 1 的整数")
	}
	maxSeconds := int(h.cfg.Solver.MaxTimeLimit.Seconds())
	if maxSeconds > 0 && req.MaxTimeSeconds > maxSeconds {
		verrs.Addf("max_time_seconds", "超过允许上限 %d 秒", maxSeconds)
	}
	if req.Workers < 0 {
		verrs.Add("workers", "须为不小于 1 的整数")
	}
	return verrs
}

// Validate 只校验不受理：返回 {valid, errors}
func (h *JobHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.Wrap(err, apperrors.CodeInvalidInput, "解析请求失败"))
		return
	}

	errs := h.orch.Validate(req.Spec)
	if errs == nil {
		errs = []string{}
	}
	respondJSON(w, http.StatusOK, ValidateResponse{Valid: len(errs) == 0, Errors: errs})
}

// Status 查询任务状态
func (h *JobHandler) Status(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询任务失败"))
		return
	}
	if job == nil {
		respondError(w, apperrors.NotFound("任务", id))
		return
	}

	respondJSON(w, http.StatusOK, StatusResponse{
		JobID:  job.ID,
		Status: job.Status,
		Bound:  job.Bound,
	})
}

// Result 查询任务结果：终态原样返回落库载荷，
// 未达终态返回 202 与当前状态
func (h *JobHandler) Result(w http.ResponseWriter, r *http.Request, id string) {
	job, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询任务失败"))
		return
	}
	if job == nil {
		respondError(w, apperrors.NotFound("任务", id))
		return
	}

	switch job.Status {
	case model.JobDone, model.JobFailed:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(job.Result)
	default:
		respondJSON(w, http.StatusAccepted, StatusResponse{
			JobID:  job.ID,
			Status: job.Status,
			Bound:  job.Bound,
		})
	}
}

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 返回错误响应
func respondError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"code":    err.Code,
		"message": err.Message,
		"details": err.Details,
	})
}

// respondValidationErrors 返回校验违规列表，载荷形如 {errors:[...]}
func respondValidationErrors(w http.ResponseWriter, verrs *apperrors.ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": verrs.Strings(),
	})
}

// asAppError 统一转换为应用错误
func asAppError(err error, fallback string) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.Wrap(err, apperrors.CodeInternal, fallback)
}
