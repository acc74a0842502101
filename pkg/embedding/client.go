// Package embedding 封装了外部向量化后端的客户端，
// 并提供能力探测、一次恢复动作与永久词法降级的生命周期管理。
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"doc-rag-go/internal/config"
	"doc-rag-go/pkg/log"
)

// ErrUnavailable 表示后端已被判定不可用。降级模式下所有 embed 调用立即返回此错误，
// 而不是返回退化向量，排序器据此显式选择词法打分。
var ErrUnavailable = errors.New("embedding 后端不可用, 已切换词法降级模式")

// Provider 是向量化提供者。首次使用时对后端做一次能力探测；
// 探测失败则尝试一次恢复动作（请求后端加载模型），仍失败则永久降级。
type Provider struct {
	cfg    config.EmbeddingConfig
	client *http.Client

	probeOnce sync.Once
	degraded  atomic.Bool
}

// NewProvider 创建一个新的 Provider 实例。
func NewProvider(cfg config.EmbeddingConfig) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Degraded 报告提供者是否已永久切换到词法降级模式。
func (p *Provider) Degraded() bool {
	return p.degraded.Load()
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed 返回单段文本的向量。降级模式下返回 ErrUnavailable。
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if vectors[0] == nil {
		return nil, fmt.Errorf("embedding api 返回了空向量")
	}
	return vectors[0], nil
}

// EmbedBatch 批量向量化。整体调用失败时返回错误；
// 个别条目缺失向量时仅该条目为 nil，调用方对这些条目单独降级为词法打分。
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := p.ensureReady(ctx); err != nil {
		return nil, err
	}

	resp, err := p.call(ctx, texts)
	if err != nil {
		log.Errorf("[EmbeddingProvider] 批量向量化调用失败, error: %v", err)
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index >= 0 && item.Index < len(vectors) && len(item.Embedding) > 0 {
			vectors[item.Index] = item.Embedding
		}
	}
	missing := 0
	for _, v := range vectors {
		if v == nil {
			missing++
		}
	}
	if missing > 0 {
		log.Warnf("[EmbeddingProvider] 批量向量化有 %d/%d 个条目未返回向量, 这些条目将降级为词法打分", missing, len(texts))
	}
	return vectors, nil
}

// ensureReady 在首次使用时执行能力探测。探测失败则执行一次记录在案的恢复动作
// （POST /models/load 请求后端加载模型），恢复后重新探测；仍失败则永久降级。
func (p *Provider) ensureReady(ctx context.Context) error {
	p.probeOnce.Do(func() {
		log.Infof("[EmbeddingProvider] 首次使用, 开始能力探测, model: %s", p.cfg.Model)
		if _, err := p.call(ctx, []string{"probe"}); err == nil {
			log.Info("[EmbeddingProvider] 能力探测通过")
			return
		} else {
			log.Warnf("[EmbeddingProvider] 能力探测失败, 尝试请求后端加载模型: %v", err)
		}

		if err := p.requestModelLoad(ctx); err != nil {
			log.Warnf("[EmbeddingProvider] 请求后端加载模型失败: %v", err)
		}

		if _, err := p.call(ctx, []string{"probe"}); err != nil {
			p.degraded.Store(true)
			log.Error("[EmbeddingProvider] 恢复后探测仍失败, 永久切换到词法降级模式", err)
			return
		}
		log.Info("[EmbeddingProvider] 恢复动作成功, 能力探测通过")
	})

	if p.degraded.Load() {
		return ErrUnavailable
	}
	return nil
}

// call 执行一次 OpenAI 兼容的 /embeddings 调用。
func (p *Provider) call(ctx context.Context, input []string) (*embeddingResponse, error) {
	reqBody := embeddingRequest{
		Model:      p.cfg.Model,
		Input:      input,
		Dimensions: p.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化 embedding 请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("创建 embedding 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 embedding api 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding api 返回非 200 状态码: %s", resp.Status)
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("解析 embedding api 响应失败: %w", err)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("embedding api 返回了空的数据")
	}
	return &embResp, nil
}

// requestModelLoad 是探测失败后唯一的恢复动作：请求后端加载配置的模型。
func (p *Provider) requestModelLoad(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"model": p.cfg.Model})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/models/load", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("模型加载请求返回非 200 状态码: %s", resp.Status)
	}
	return nil
}
