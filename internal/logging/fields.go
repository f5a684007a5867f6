package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 描述一次 API 请求：路由、后端、模型与最终状态码。
func RequestFields(route, providerID, model, requestID string, status int) logrus.Fields {
	fields := logrus.Fields{
		"route":      route,
		"request_id": requestID,
		"status":     status,
	}
	if providerID != "" {
		fields["provider"] = providerID
	}
	if model != "" {
		fields["model"] = model
	}
	return fields
}

// StreamFields 在流式响应结束时记录分片数量与终止原因。
func StreamFields(providerID, model, requestID string, chunks int, finish string) logrus.Fields {
	return logrus.Fields{
		"action":     "stream_end",
		"provider":   providerID,
		"model":      model,
		"request_id": requestID,
		"chunks":     chunks,
		"finish":     finish,
	}
}
