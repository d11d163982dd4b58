//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	convapp "convoform-api/internal/application/conversation"
	"convoform-api/internal/application/engine"
	formapp "convoform-api/internal/application/form"
	"convoform-api/internal/application/realtime"
	"convoform-api/internal/config"
	"convoform-api/internal/domain/repository"
	"convoform-api/internal/infrastructure/llm"
	"convoform-api/internal/infrastructure/messaging"
	"convoform-api/internal/infrastructure/persistence/postgres"
	"convoform-api/internal/infrastructure/persistence/redis"
	"convoform-api/internal/interfaces/http/handler"
	"convoform-api/internal/interfaces/http/middleware"
	"convoform-api/internal/interfaces/http/router"
	workflowport "convoform-api/internal/workflow/port"
)

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		EngineSet,
		RealtimeSet,
		RouterSet,
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewFormRepository,
	postgres.NewConversationRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	// 接口绑定
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.FormRepository), new(*postgres.FormRepository)),
	wire.Bind(new(repository.ConversationRepository), new(*postgres.ConversationRepository)),
	wire.Bind(new(realtime.ProgressStore), new(*postgres.ConversationRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
)

// EngineSet 会话编排引擎端口提供者集合
var EngineSet = wire.NewSet(
	llm.NewEinoFactory,
	wire.Bind(new(workflowport.ChatModelFactory), new(*llm.EinoFactory)),
	ProvideExtractor,
	ProvideQuestionStreamer,
	ProvideSummarizer,
)

// RealtimeSet 实时广播提供者集合
var RealtimeSet = wire.NewSet(
	realtime.NewHub,
	ProvideRealtimeConfig,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	formapp.NewService,
	convapp.NewService,
	handler.NewHealthHandler,
	handler.NewFormHandler,
	handler.NewConversationHandler,
	handler.NewRealtimeHandler,
	router.New,
)

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供会话事件生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	stream := cfg.Messaging.RedisStream.Stream
	if stream == "" {
		stream = "convoform:events"
	}
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), stream, int64(maxLen))
}

// ProvideExtractor 提供答案抽取器
func ProvideExtractor(factory workflowport.ChatModelFactory, cfg *config.Config) engine.Extractor {
	return engine.NewEinoExtractor(factory, cfg.LLM.DefaultProvider)
}

// ProvideQuestionStreamer 提供问题流式生成器
func ProvideQuestionStreamer(factory workflowport.ChatModelFactory, cfg *config.Config) engine.QuestionStreamer {
	return engine.NewEinoQuestionStreamer(factory, cfg.LLM.DefaultProvider)
}

// ProvideSummarizer 提供会话总结器
func ProvideSummarizer(factory workflowport.ChatModelFactory, cfg *config.Config) engine.Summarizer {
	return engine.NewEinoSummarizer(factory, cfg.LLM.DefaultProvider)
}

// ProvideRealtimeConfig 提供 WebSocket 连接配置
func ProvideRealtimeConfig(cfg *config.Config) config.RealtimeConfig {
	return cfg.Realtime
}
