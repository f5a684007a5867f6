// Package server 负责构建 Fiber 应用：中间件链（recover、请求 ID、访问日志、
// JSON 请求体检查）、统一的 JSON 错误渲染，以及三条 API 路由的挂载。
// 具体业务 handler 由调用方注入，本包只依赖 RouteHandlers 接口。
// 上游请求使用的共享 http.Client 也在这里集中构造。
package server
