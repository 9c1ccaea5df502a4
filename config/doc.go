// Package config 提供 AgentPool 的配置管理功能。
//
// 包含能力目录、评分策略、加载器与运行时配置提供者。
// 支持从文件和环境变量加载配置，策略权重在加载时校验，
// 并提供轮询式热重载能力。
package config
