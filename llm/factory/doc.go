// Package factory 按声明式配置把 DashScope 各能力的客户端装配进组件注册表。
//
// 装配分两步：[ResolveConnection] 把共享连接属性与能力级属性逐字段合并，
// [Assembler] 再按 enabled 开关与用户覆盖决定是否调用默认工厂。
package factory
