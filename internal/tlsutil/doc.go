// Package tlsutil 提供集中式 TLS 配置，
// 为 DashScope 各能力的 HTTP 与 WebSocket 客户端提供安全加固的传输层（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
