package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/dashscope-starter/config"
	"github.com/BaSui01/dashscope-starter/internal/metrics"
	"github.com/BaSui01/dashscope-starter/internal/telemetry"
	"github.com/BaSui01/dashscope-starter/llm"
	"github.com/BaSui01/dashscope-starter/llm/factory"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const observationRegistryName = "observationRegistry"

// session 一次命令执行期间的运行时对象
type session struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *llm.Registry
	providers *telemetry.Providers
	gatherer  prometheus.Gatherer
}

// newSession 加载配置、初始化日志与观测，并执行一次完整装配。
// 观测初始化之后的任一步失败都会先关闭 session。
func (o *rootOptions) newSession(ctx context.Context) (_ *session, err error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	props := cfg.Properties

	// 命令输出占用 stdout，日志默认写 stderr
	if !cfg.Environment.Contains(config.LoggingPrefix + ".output-paths") {
		props.Log.OutputPaths = []string{"stderr"}
	}
	logger := initLogger(props.Log)

	providers, err := telemetry.Init(ctx, props.Observations, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	promReg := prometheus.NewRegistry()
	s := &session{
		cfg:       cfg,
		logger:    logger,
		registry:  llm.NewRegistry(),
		providers: providers,
		gatherer:  promReg,
	}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	collector := metrics.NewCollector(props.Observations.MetricsNamespace, promReg, logger)
	observations, err := providers.ObservationRegistry(logger, collector)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Register(observationRegistryName, observations); err != nil {
		return nil, err
	}

	asm := factory.NewAssembler(cfg.Environment, props, s.registry,
		factory.WithLogger(logger),
		factory.WithMetrics(collector),
	)
	if err := asm.Assemble(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// close 刷新观测数据并同步日志
func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.providers.Shutdown(ctx); err != nil {
		s.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = s.logger.Sync()
}

// assemblyOutcomes 从指标中读出每个能力的装配结果
func (s *session) assemblyOutcomes() map[string]string {
	out := make(map[string]string)
	mfs, err := s.gatherer.Gather()
	if err != nil {
		s.logger.Warn("gather metrics failed", zap.Error(err))
		return out
	}
	name := s.cfg.Properties.Observations.MetricsNamespace + "_components_assembled_total"
	if s.cfg.Properties.Observations.MetricsNamespace == "" {
		name = "components_assembled_total"
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			var capability, outcome string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "capability":
					capability = lp.GetValue()
				case "outcome":
					outcome = lp.GetValue()
				}
			}
			if m.GetCounter().GetValue() > 0 {
				out[capability] = outcome
			}
		}
	}
	return out
}
