package provider

import "strings"

var validRoles = map[Role]struct{}{
	RoleSystem:    {},
	RoleUser:      {},
	RoleAssistant: {},
	RoleTool:      {},
}

var validToolChoiceModes = map[string]struct{}{
	"auto":     {},
	"none":     {},
	"required": {},
	"tool":     {},
}

// ValidateInput 在分发到后端前做形状校验，所有错误均为 validation 类。
func ValidateInput(input GenerateInput) error {
	if strings.TrimSpace(string(input.Provider)) == "" {
		return NewError(KindValidation, "", "provider is required")
	}
	if strings.TrimSpace(input.Model) == "" {
		return NewError(KindValidation, input.Provider, "model is required")
	}
	if len(input.Messages) == 0 {
		return NewError(KindValidation, input.Provider, "messages must not be empty")
	}
	for i, msg := range input.Messages {
		if _, ok := validRoles[msg.Role]; !ok {
			return NewError(KindValidation, input.Provider, "messages[%d].role %q is not supported", i, msg.Role)
		}
		for j, part := range msg.Content {
			switch part.Type {
			case "text":
			case "image":
				if part.Image == nil || (part.Image.URL == "" && part.Image.Base64 == "") {
					return NewError(KindValidation, input.Provider, "messages[%d].content[%d] image requires url or base64", i, j)
				}
			default:
				return NewError(KindValidation, input.Provider, "messages[%d].content[%d].type %q is not supported", i, j, part.Type)
			}
		}
		if msg.Role == RoleTool && msg.ToolCallID == "" {
			return NewError(KindValidation, input.Provider, "messages[%d] tool message requires toolCallId", i)
		}
	}
	for i, tool := range input.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			return NewError(KindValidation, input.Provider, "tools[%d].name is required", i)
		}
	}
	if tc := input.ToolChoice; tc != nil {
		if _, ok := validToolChoiceModes[tc.Mode]; !ok {
			return NewError(KindValidation, input.Provider, "toolChoice %q is not supported", tc.Mode)
		}
		if tc.Mode == "tool" && tc.Name == "" {
			return NewError(KindValidation, input.Provider, "toolChoice.name is required")
		}
	}
	if rf := input.ResponseFormat; rf != nil {
		switch rf.Type {
		case "text":
		case "json_schema":
			if rf.JSONSchema == nil || len(rf.JSONSchema.Schema) == 0 {
				return NewError(KindValidation, input.Provider, "responseFormat.jsonSchema.schema is required")
			}
		default:
			return NewError(KindValidation, input.Provider, "responseFormat.type %q is not supported", rf.Type)
		}
	}
	return nil
}
