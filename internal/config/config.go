// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tika      TikaConfig      `mapstructure:"tika"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Context   ContextConfig   `mapstructure:"context"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// StorageConfig 存储文档存储根目录相关的配置。
// 每个文档占用 root 下一个以文档 ID 命名的目录，元数据索引快照也保存在 root 下。
type StorageConfig struct {
	Root string `mapstructure:"root"`
}

// TikaConfig 存储 Tika 服务器相关的配置（OCR 与 PDF 提取的外部协作方）。
type TikaConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ChunkingConfig 存储文本分块相关的配置。
type ChunkingConfig struct {
	MaxChunkSize int `mapstructure:"max_chunk_size"`
}

// RetrievalConfig 存储检索打分相关的配置。
// 词法打分的权重是可调的默认值，而不是硬性契约。
type RetrievalConfig struct {
	MinScore       float64 `mapstructure:"min_score"`
	TermWeight     float64 `mapstructure:"term_weight"`
	PositionWeight float64 `mapstructure:"position_weight"`
	LengthWeight   float64 `mapstructure:"length_weight"`
	TargetLength   int     `mapstructure:"target_length"`
	DefaultLimit   int     `mapstructure:"default_limit"`
}

// ContextConfig 存储上下文组装相关的配置。
type ContextConfig struct {
	DefaultBudget int `mapstructure:"default_budget"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

// setDefaults 为可省略的配置项提供默认值。
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("storage.root", "./data")
	viper.SetDefault("tika.timeout", 30*time.Second)
	viper.SetDefault("embedding.timeout", 15*time.Second)
	viper.SetDefault("chunking.max_chunk_size", 1000)
	viper.SetDefault("retrieval.min_score", 0.05)
	viper.SetDefault("retrieval.term_weight", 0.6)
	viper.SetDefault("retrieval.position_weight", 0.25)
	viper.SetDefault("retrieval.length_weight", 0.15)
	viper.SetDefault("retrieval.target_length", 300)
	viper.SetDefault("retrieval.default_limit", 10)
	viper.SetDefault("context.default_budget", 4000)
}
