// 版权所有 2024 AgentPool Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的调度器指标采集能力，覆盖
任务、选择、池、再平衡与状态五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - 任务指标：分配总数（direct/queued）、完成总数（success/failure）、
    执行耗时，按 agent_type 分组。
  - 选择指标：最优 Agent 选择耗时 Histogram。
  - 池指标：各状态 Agent 数量 Gauge、排队任务总数 Gauge。
  - 再平衡指标：任务移动总数。
  - 状态指标：状态转换计数，按 agent_type/from_state/to_state 分组。
*/
package metrics
