// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"doc-rag-go/internal/assembler"
	"doc-rag-go/internal/chunker"
	"doc-rag-go/internal/config"
	"doc-rag-go/internal/extract"
	"doc-rag-go/internal/handler"
	"doc-rag-go/internal/index"
	"doc-rag-go/internal/middleware"
	"doc-rag-go/internal/ranker"
	"doc-rag-go/internal/service"
	"doc-rag-go/internal/storage"
	"doc-rag-go/pkg/embedding"
	"doc-rag-go/pkg/log"
	"doc-rag-go/pkg/tika"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化存储与元数据索引
	// 索引快照缺失或损坏时以空索引启动, 重建交给显式的维护清理
	store, err := storage.NewStore(cfg.Storage.Root)
	if err != nil {
		log.Fatal("初始化文档存储失败", err)
	}
	idx, err := index.Open(cfg.Storage.Root)
	if err != nil {
		log.Fatal("打开元数据索引失败", err)
	}

	// 4. 初始化协作方客户端
	tikaClient := tika.NewClient(cfg.Tika)
	provider := embedding.NewProvider(cfg.Embedding)

	// 5. 初始化 Service (依赖注入)
	dispatcher := extract.NewDispatcher(tikaClient)
	ck := chunker.New(cfg.Chunking.MaxChunkSize)
	rk := ranker.New(cfg.Retrieval)
	asm := assembler.New(cfg.Context.DefaultBudget)
	documentService := service.NewDocumentService(idx, store, dispatcher, ck, provider, cfg.Embedding)
	searchService := service.NewSearchService(idx, store, provider, rk, asm)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	dh := handler.NewDocumentHandler(documentService)
	sh := handler.NewSearchHandler(searchService)

	apiV1 := r.Group("/api/v1")
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("", dh.Upload)
			documents.GET("", dh.List)
			documents.GET("/:id", dh.Get)
			documents.GET("/:id/download", dh.Download)
			documents.DELETE("/:id", dh.Delete)
			documents.PUT("/:id/tags", dh.UpdateTags)
		}

		search := apiV1.Group("/search")
		{
			search.GET("", sh.Search)
			search.POST("/context", sh.BuildContext)
		}

		maintenance := apiV1.Group("/maintenance")
		{
			maintenance.POST("/sweep", dh.Sweep)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
