// Package hub 聚合所有已配置的模型后端，对外提供统一的模型列表、
// 阻塞生成与流式生成入口。Hub 在启动阶段构建一次，之后只读；
// 模型列表按后端缓存，缓存本身是并发安全的。
package hub
