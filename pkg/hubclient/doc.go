// Package hubclient 是 llmhub-server HTTP 接口的 Go 客户端。
//
// 客户端绑定一个 provider/model 组合，Generate 只返回文本；
// 若服务端返回工具调用，Generate 返回 ErrToolCallsUnsupported，
// 调用方可通过 LastToolCalls 取回原始调用。
package hubclient
