package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpapale/schedulai/pkg/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "校验排班规格文档",
	Long:  "读取规格 JSON 文档，执行模式校验与规范化，输出校验结论；文档不合法时以非零状态码退出。",
	RunE:  runValidate,
}

var validateFile string

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "规格文档路径（必填）")

	if err := validateCmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Sprintf("标记file为必填参数失败: %v", err))
	}

	rootCmd.AddCommand(validateCmd)
}

// validateReport 校验结论，与 /api/v1/validate 的响应同构
type validateReport struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func runValidate(cmd *cobra.Command, _ []string) error {
	doc, err := os.ReadFile(validateFile)
	if err != nil {
		return fmt.Errorf("读取规格文档失败: %w", err)
	}

	report := validateReport{Valid: true, Errors: []string{}}
	if _, verrs := validator.ValidateAndNormalize(doc); verrs.HasErrors() {
		report.Valid = false
		report.Errors = verrs.Strings()
	}

	if err := printJSON(cmd, report); err != nil {
		return err
	}

	if !report.Valid {
		return fmt.Errorf("规格文档未通过校验（%d 处违规）", len(report.Errors))
	}
	return nil
}
