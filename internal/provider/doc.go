// Package provider 定义模型后端（OpenAI、xAI 等）的统一抽象与注册入口。
//
// 后端实现需要：
//   1. 在 internal/provider/<key>/ 目录下实现 Provider 接口；
//   2. 在 init() 中通过 MustRegister 注册元数据与构造函数；
//   3. 将上游错误统一转换为 *Error，便于 HTTP 层映射状态码。
//
// 本包同时承载请求/响应的线上数据结构（GenerateInput、GenerateOutput、StreamChunk），
// 所有字段名与 llmhub-node 的 JSON 形状保持一致。
package provider
