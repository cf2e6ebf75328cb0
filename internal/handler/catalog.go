package handler

import (
	"net/http"

	apperrors "github.com/fpapale/schedulai/pkg/errors"
	"github.com/fpapale/schedulai/pkg/model"
)

// RulesCatalogResponse 规则目录响应
type RulesCatalogResponse struct {
	Catalog []model.KindSpec `json:"catalog"`
}

// GetRulesCatalogHandler 规则目录接口：返回识别的全部规则种类及参数定义，
// 供编辑器渲染规则表单。目录与规范化器共用同一份封闭集合，不另行维护
func GetRulesCatalogHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, apperrors.New(apperrors.CodeInvalidInput, "仅支持GET方法"))
		return
	}
	respondJSON(w, http.StatusOK, RulesCatalogResponse{Catalog: model.Kinds()})
}
