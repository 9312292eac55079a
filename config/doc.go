// Package config 提供 DashScope 能力描述符的加载与绑定。
//
// 配置来源按优先级叠加：默认值、YAML 或 .properties 文件、环境变量、
// 显式属性。键按宽松规则匹配（apiKey、api-key、api_key、API_KEY 等价），
// 空字符串视为未设置。描述符在启动期绑定一次，之后只读。
package config
