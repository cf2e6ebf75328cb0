// Package validator 实现规格文档的结构校验与语义规范化。
// 两个阶段都累积全部错误后一次性返回，绝不在首个错误处中断
package validator

import (
	"sync"

	"github.com/xeipuuv/gojsonschema"

	apperrors "github.com/fpapale/schedulai/pkg/errors"
)

// specSchema 规格文档的声明式模式（draft-07）。
// 覆盖 §结构校验 的全部失败种类：缺失字段、类型错误、
// 模式不匹配、eq 与 min/max 冲突、负分钟数、未知顶层键
const specSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["sets", "shifts", "employees", "demand", "constraints", "objective"],
  "additionalProperties": false,
  "properties": {
    "sets": {
      "type": "object",
      "required": ["employees", "days", "shifts", "sites"],
      "additionalProperties": false,
      "properties": {
        "employees": {"type": "array", "items": {"type": "string", "minLength": 1}, "minItems": 1, "uniqueItems": true},
        "days": {"type": "array", "items": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}, "minItems": 1, "uniqueItems": true},
        "shifts": {"type": "array", "items": {"type": "string", "minLength": 1}, "minItems": 1, "uniqueItems": true},
        "sites": {"type": "array", "items": {"type": "string", "minLength": 1}, "uniqueItems": true}
      }
    },
    "shifts": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["start", "end", "minutes", "is_work"],
        "additionalProperties": false,
        "properties": {
          "start": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"},
          "end": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"},
          "minutes": {"type": "integer", "minimum": 0},
          "is_work": {"type": "boolean"}
        }
      }
    },
    "employees": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["skills", "roles"],
        "additionalProperties": false,
        "properties": {
          "skills": {"type": "array", "items": {"type": "string"}, "uniqueItems": true},
          "roles": {"type": "array", "items": {"type": "string"}, "uniqueItems": true},
          "site_home": {"type": "string", "minLength": 1},
          "contract": {
            "type": "object",
            "required": ["type"],
            "additionalProperties": false,
            "properties": {"type": {"type": "string", "minLength": 1}}
          }
        }
      }
    },
    "demand": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["day", "site", "shift"],
        "additionalProperties": false,
        "properties": {
          "day": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
          "site": {"type": "string", "minLength": 1},
          "shift": {"type": "string", "minLength": 1},
          "eq": {"type": "integer", "minimum": 0},
          "min": {"type": "integer", "minimum": 0},
          "max": {"type": "integer", "minimum": 0},
          "requirements": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "skills_min": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["skill", "min"],
                  "additionalProperties": false,
                  "properties": {
                    "skill": {"type": "string", "minLength": 1},
                    "min": {"type": "integer", "minimum": 0}
                  }
                }
              },
              "roles_min": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["role", "min"],
                  "additionalProperties": false,
                  "properties": {
                    "role": {"type": "string", "minLength": 1},
                    "min": {"type": "integer", "minimum": 0}
                  }
                }
              }
            }
          }
        },
        "allOf": [
          {"not": {"required": ["eq", "min"]}},
          {"not": {"required": ["eq", "max"]}},
          {"anyOf": [{"required": ["eq"]}, {"required": ["min"]}, {"required": ["max"]}]}
        ]
      }
    },
    "constraints": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "kind"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"type": "string", "enum": ["hard", "soft"]},
          "kind": {"type": "string", "minLength": 1},
          "scope": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "employees": {
                "oneOf": [
                  {"type": "string", "enum": ["ALL"]},
                  {"type": "array", "items": {"type": "string", "minLength": 1}, "uniqueItems": true}
                ]
              },
              "skills_any": {"type": "array", "items": {"type": "string"}},
              "skills_all": {"type": "array", "items": {"type": "string"}},
              "roles_any": {"type": "array", "items": {"type": "string"}},
              "roles_all": {"type": "array", "items": {"type": "string"}},
              "sites_any": {"type": "array", "items": {"type": "string"}},
              "contracts_any": {"type": "array", "items": {"type": "string"}}
            }
          },
          "data": {"type": "object"},
          "penalty": {
            "type": "object",
            "required": ["weight"],
            "additionalProperties": false,
            "properties": {"weight": {"type": "integer", "minimum": 0}}
          }
        }
      }
    },
    "objective": {
      "type": "object",
      "required": ["mode", "terms"],
      "additionalProperties": false,
      "properties": {
        "mode": {"type": "string", "enum": ["minimize"]},
        "terms": {
          "type": "array",
          "minItems": 1,
          "maxItems": 1,
          "items": {
            "type": "object",
            "required": ["kind", "weight"],
            "additionalProperties": false,
            "properties": {
              "kind": {"type": "string", "enum": ["soft_penalties_total"]},
              "weight": {"type": "integer", "minimum": 0}
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(specSchema))
	})
	return schema, schemaErr
}

// ValidateSchema 对规格文档做结构校验，返回累积的全部违规。
// 文档本身不是合法 JSON 也记为一条结构违规
func ValidateSchema(doc []byte) *apperrors.ValidationErrors {
	verrs := &apperrors.ValidationErrors{}

	s, err := compiledSchema()
	if err != nil {
		verrs.Add("", "内置模式编译失败: "+err.Error())
		return verrs
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		verrs.Add("", "文档不是合法 JSON: "+err.Error())
		return verrs
	}

	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "(root)" {
			field = ""
		}
		verrs.Add(field, desc.Description())
	}
	return verrs
}
