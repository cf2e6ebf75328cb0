package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fpapale/schedulai/internal/config"
	"github.com/fpapale/schedulai/internal/orchestrator"
	"github.com/fpapale/schedulai/internal/repository"
	"github.com/fpapale/schedulai/pkg/model"
)

func TestSubmitJobAccepted(t *testing.T) {
	h, repo := newJobHandler(t, testConfig())

	rec := postJSON(t, h, "/api/v1/jobs", map[string]interface{}{
		"spec": json.RawMessage(specDoc(t)),
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("状态码 = %d, want %d（载荷 %s）", rec.Code, http.StatusAccepted, rec.Body)
	}
	var resp SubmitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("受理响应应携带任务标识")
	}

	job, err := repo.GetByID(context.Background(), resp.JobID)
	if err != nil || job == nil {
		t.Fatalf("受理后任务应已登记: job=%v err=%v", job, err)
	}
	if job.Status != model.JobQueued {
		t.Errorf("新任务状态 = %v, want %v", job.Status, model.JobQueued)
	}
}

func TestSubmitJobValidationErrors(t *testing.T) {
	h, _ := newJobHandler(t, testConfig())

	rec := postJSON(t, h, "/api/v1/jobs", map[string]interface{}{
		"spec": map[string]interface{}{"sets": map[string]interface{}{}},
	})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("状态码 = %d, want 422", rec.Code)
	}
	var resp struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(resp.Errors) == 0 {
		t.Error("违规载荷应携带错误列表")
	}
}

func TestSubmitJobEnvelopeBounds(t *testing.T) {
	tests := []struct {
		name      string
		body      map[string]interface{}
		wantField string
	}{
		{
			name: "时限超过配置上限",
			body: map[string]interface{}{
				"spec":             json.RawMessage(`{}`),
				"max_time_seconds": 99999,
			},
			wantField: "max_time_seconds",
		},
		{
			name: "负时限",
			body: map[string]interface{}{
				"spec":             json.RawMessage(`{}`),
				"max_time_seconds": -1,
			},
			wantField: "max_time_seconds",
		},
		{
			name: "负并发度",
			body: map[string]interface{}{
				"spec":    json.RawMessage(`{}`),
				"workers": -2,
			},
			wantField: "workers",
		},
		{
			name:      "缺少规格",
			body:      map[string]interface{}{"max_time_seconds": 5},
			wantField: "spec",
		},
	}

	h, _ := newJobHandler(t, testConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h, "/api/v1/jobs", tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("状态码 = %d, want 422", rec.Code)
			}
			var resp struct {
				Errors []string `json:"errors"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("解析响应失败: %v", err)
			}
			joined := strings.Join(resp.Errors, "\n")
			if !strings.Contains(joined, tt.wantField) {
				t.Errorf("错误列表缺少字段 %q:\n%s", tt.wantField, joined)
			}
		})
	}
}

func TestSubmitJobMalformedBody(t *testing.T) {
	h, _ := newJobHandler(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(`{"spec": `))
	rec := httptest.NewRecorder()
	h.Routes(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != "INVALID_INPUT" {
		t.Errorf("错误码 = %q, want INVALID_INPUT", code)
	}
}

func TestSubmitJobMethodNotAllowed(t *testing.T) {
	h, _ := newJobHandler(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()
	h.Routes(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d, want 400", rec.Code)
	}
}

func TestSubmitJobQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.Jobs.QueueCapacity = 1
	h, _ := newJobHandler(t, cfg)

	body := map[string]interface{}{"spec": json.RawMessage(specDoc(t))}
	if rec := postJSON(t, h, "/api/v1/jobs", body); rec.Code != http.StatusAccepted {
		t.Fatalf("首个提交状态码 = %d, want 202", rec.Code)
	}

	rec := postJSON(t, h, "/api/v1/jobs", body)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("状态码 = %d, want 503", rec.Code)
	}
	if code := errorCode(t, rec); code != "OVERLOADED" {
		t.Errorf("错误码 = %q, want OVERLOADED", code)
	}
}

func TestJobStatus(t *testing.T) {
	h, repo := newJobHandler(t, testConfig())
	seedJob(t, repo, "j-queued", model.JobQueued, nil, nil)
	bound := int64(3)
	seedJob(t, repo, "j-done", model.JobDone, []byte(`{"status":"OPTIMAL"}`), &bound)

	t.Run("排队中的任务", func(t *testing.T) {
		rec := getPath(t, h, "/api/v1/jobs/j-queued")
		if rec.Code != http.StatusOK {
			t.Fatalf("状态码 = %d, want 200", rec.Code)
		}
		var resp StatusResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("解析响应失败: %v", err)
		}
		if resp.JobID != "j-queued" || resp.Status != model.JobQueued {
			t.Errorf("响应 = %+v, want j-queued/queued", resp)
		}
		if resp.Bound != nil {
			t.Errorf("未达终态不应携带界: %v", *resp.Bound)
		}
	})

	t.Run("终态任务携带界", func(t *testing.T) {
		rec := getPath(t, h, "/api/v1/jobs/j-done")
		var resp StatusResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("解析响应失败: %v", err)
		}
		if resp.Status != model.JobDone {
			t.Errorf("Status = %v, want done", resp.Status)
		}
		if resp.Bound == nil || *resp.Bound != 3 {
			t.Errorf("Bound = %v, want 3", resp.Bound)
		}
	})

	t.Run("不存在的任务", func(t *testing.T) {
		rec := getPath(t, h, "/api/v1/jobs/ghost")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("状态码 = %d, want 404", rec.Code)
		}
		if code := errorCode(t, rec); code != "NOT_FOUND" {
			t.Errorf("错误码 = %q, want NOT_FOUND", code)
		}
	})
}

func TestJobResult(t *testing.T) {
	h, repo := newJobHandler(t, testConfig())
	doneBlob := []byte(`{"status":"OPTIMAL","objective_value":0,"schedule":{"data":{},"rest":{}},"flat":[],"penalties":{}}`)
	failBlob := []byte(`{"status":"INFEASIBLE","message":"约束集合无可行解","bound":0}`)
	bound := int64(0)
	seedJob(t, repo, "j-done", model.JobDone, doneBlob, &bound)
	seedJob(t, repo, "j-failed", model.JobFailed, failBlob, &bound)
	seedJob(t, repo, "j-running", model.JobRunning, nil, nil)

	t.Run("完成任务原样返回结果", func(t *testing.T) {
		rec := getPath(t, h, "/api/v1/jobs/j-done/result")
		if rec.Code != http.StatusOK {
			t.Fatalf("状态码 = %d, want 200", rec.Code)
		}
		if !bytes.Equal(bytes.TrimSpace(rec.Body.Bytes()), doneBlob) {
			t.Errorf("结果载荷 = %s, want %s", rec.Body, doneBlob)
		}
	})

	t.Run("失败任务返回失败载荷", func(t *testing.T) {
		rec := getPath(t, h, "/api/v1/jobs/j-failed/result")
		if rec.Code != http.StatusOK {
			t.Fatalf("状态码 = %d, want 200", rec.Code)
		}
		var failure model.Failure
		if err := json.Unmarshal(rec.Body.Bytes(), &failure); err != nil {
			t.Fatalf("解析失败载荷失败: %v", err)
		}
		if failure.Status != model.StatusInfeasible {
			t.Errorf("Status = %v, want INFEASIBLE", failure.Status)
		}
	})

	t.Run("未达终态返回当前状态", func(t *testing.T) {
		rec := getPath(t, h, "/api/v1/jobs/j-running/result")
		if rec.Code != http.StatusAccepted {
			t.Fatalf("状态码 = %d, want 202", rec.Code)
		}
		var resp StatusResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("解析响应失败: %v", err)
		}
		if resp.Status != model.JobRunning {
			t.Errorf("Status = %v, want running", resp.Status)
		}
	})

	t.Run("不存在的任务", func(t *testing.T) {
		rec := getPath(t, h, "/api/v1/jobs/ghost/result")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("状态码 = %d, want 404", rec.Code)
		}
	})
}

func TestJobRoutesDispatch(t *testing.T) {
	h, repo := newJobHandler(t, testConfig())
	seedJob(t, repo, "j1", model.JobQueued, nil, nil)

	t.Run("未知子路径", func(t *testing.T) {
		rec := getPath(t, h, "/api/v1/jobs/j1/schedule")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("状态码 = %d, want 404", rec.Code)
		}
	})

	t.Run("子路径不支持写方法", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/jobs/j1", nil)
		rec := httptest.NewRecorder()
		h.Routes(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("状态码 = %d, want 400", rec.Code)
		}
	})
}

func TestValidateEndpoint(t *testing.T) {
	h, _ := newJobHandler(t, testConfig())

	t.Run("合法规格", func(t *testing.T) {
		rec := postJSON(t, h, "/api/v1/validate", map[string]interface{}{
			"spec": json.RawMessage(specDoc(t)),
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("状态码 = %d, want 200", rec.Code)
		}
		var resp ValidateResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("解析响应失败: %v", err)
		}
		if !resp.Valid || len(resp.Errors) != 0 {
			t.Errorf("响应 = %+v, want valid 且无错误", resp)
		}
	})

	t.Run("违规规格", func(t *testing.T) {
		rec := postJSON(t, h, "/api/v1/validate", map[string]interface{}{
			"spec": map[string]interface{}{"sets": map[string]interface{}{}},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("校验接口本身应返回 200, got %d", rec.Code)
		}
		var resp ValidateResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("解析响应失败: %v", err)
		}
		if resp.Valid || len(resp.Errors) == 0 {
			t.Errorf("响应 = %+v, want 无效且携带错误列表", resp)
		}
	})

	t.Run("方法不允许", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/validate", nil)
		rec := httptest.NewRecorder()
		h.Validate(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("状态码 = %d, want 400", rec.Code)
		}
	})
}

func TestRulesCatalog(t *testing.T) {
	t.Run("返回完整目录", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/rules/catalog", nil)
		rec := httptest.NewRecorder()
		GetRulesCatalogHandler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("状态码 = %d, want 200", rec.Code)
		}
		var resp RulesCatalogResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("解析响应失败: %v", err)
		}
		want := model.Kinds()
		if len(resp.Catalog) != len(want) {
			t.Fatalf("目录条目数 = %d, want %d", len(resp.Catalog), len(want))
		}
		kinds := make(map[model.RuleKind]model.KindSpec, len(resp.Catalog))
		for _, ks := range resp.Catalog {
			kinds[ks.Kind] = ks
		}
		rest, ok := kinds[model.KindMinRestMinutesBetweenShifts]
		if !ok {
			t.Fatal("目录缺少 min_rest_minutes_between_shifts")
		}
		if rest.Type != model.RuleHard {
			t.Errorf("min_rest 类别 = %v, want hard", rest.Type)
		}
		if len(rest.Fields) != 1 || rest.Fields[0].Name != "minutes" || !rest.Fields[0].Required {
			t.Errorf("min_rest 参数 = %+v, want 必填 minutes", rest.Fields)
		}
		if fair, ok := kinds[model.KindFairDistribution]; !ok || fair.Type != model.RuleSoft {
			t.Errorf("fair_distribution 条目 = %+v, want soft", fair)
		}
	})

	t.Run("方法不允许", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/rules/catalog", nil)
		rec := httptest.NewRecorder()
		GetRulesCatalogHandler(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("状态码 = %d, want 400", rec.Code)
		}
	})
}

// ===================== 测试辅助 =====================

func testConfig() *config.Config {
	return &config.Config{
		Solver: config.SolverConfig{
			DefaultTimeLimit: 5 * time.Second,
			MaxTimeLimit:     120 * time.Second,
			DefaultWorkers:   2,
			MaxWorkers:       4,
			MaxLatticeCells:  200000,
		},
		Jobs: config.JobsConfig{
			QueueCapacity: 4,
			PoolSize:      2,
		},
	}
}

// newJobHandler 构造处理器。编排器不启动工作池：
// 受理后任务停留在队列中即可满足接口断言
func newJobHandler(t *testing.T, cfg *config.Config) (*JobHandler, repository.JobRepositoryInterface) {
	t.Helper()
	repo := repository.NewMemoryJobRepository()
	orch := orchestrator.New(cfg, repo)
	return NewJobHandler(cfg, orch, repo), repo
}

func postJSON(t *testing.T, h *JobHandler, path string, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("构造请求失败: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	if path == "/api/v1/validate" {
		h.Validate(rec, req)
	} else {
		h.Routes(rec, req)
	}
	return rec
}

func getPath(t *testing.T, h *JobHandler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.Routes(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析错误响应失败: %v", err)
	}
	return resp.Code
}

func seedJob(t *testing.T, repo repository.JobRepositoryInterface, id string, status model.JobStatus, result []byte, bound *int64) {
	t.Helper()
	ctx := context.Background()
	if err := repo.Create(ctx, &repository.Job{ID: id, Status: model.JobQueued, Spec: []byte(`{}`)}); err != nil {
		t.Fatalf("登记任务失败: %v", err)
	}
	switch status {
	case model.JobQueued:
	case model.JobDone, model.JobFailed:
		if err := repo.Complete(ctx, id, status, result, bound); err != nil {
			t.Fatalf("写入终态失败: %v", err)
		}
	default:
		if err := repo.UpdateStatus(ctx, id, status); err != nil {
			t.Fatalf("更新状态失败: %v", err)
		}
	}
}

// specDoc 构造可通过全部校验的最小规格文档
func specDoc(t *testing.T) []byte {
	t.Helper()
	doc := map[string]interface{}{
		"sets": map[string]interface{}{
			"employees": []interface{}{"P1"},
			"days":      []interface{}{"2026-03-02"},
			"shifts":    []interface{}{"M", "OFF"},
			"sites":     []interface{}{"A"},
		},
		"shifts": map[string]interface{}{
			"M":   map[string]interface{}{"start": "07:00", "end": "15:00", "minutes": 480, "is_work": true},
			"OFF": map[string]interface{}{"start": "00:00", "end": "00:00", "minutes": 0, "is_work": false},
		},
		"employees": map[string]interface{}{
			"P1": map[string]interface{}{
				"skills":    []interface{}{"general"},
				"roles":     []interface{}{"worker"},
				"site_home": "A",
				"contract":  map[string]interface{}{"type": "full_time"},
			},
		},
		"demand": []interface{}{
			map[string]interface{}{"day": "2026-03-02", "site": "A", "shift": "M", "eq": 1},
		},
		"constraints": []interface{}{
			map[string]interface{}{
				"id":    "one-per-day",
				"type":  "hard",
				"kind":  "exactly_one_assignment_per_day",
				"scope": map[string]interface{}{"employees": "ALL"},
				"data":  map[string]interface{}{"shifts": []interface{}{"M", "OFF"}},
			},
		},
		"objective": map[string]interface{}{
			"mode":  "minimize",
			"terms": []interface{}{map[string]interface{}{"kind": "soft_penalties_total", "weight": 1}},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("构造文档失败: %v", err)
	}
	return raw
}
