// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
// Tika 同时承担 OCR（由 Tesseract 支撑的图片识别）与 PDF 文本提取两类协作方角色，
// 其内部实现不在引擎范围内。
package tika

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"doc-rag-go/internal/config"
)

// ErrMalformedInput 表示协作方判定输入文件本身不合法（4xx）。
var ErrMalformedInput = errors.New("tika: 输入文件不合法")

// ErrBackendUnavailable 表示协作方不可达或内部出错（连接失败或 5xx）。
var ErrBackendUnavailable = errors.New("tika: 提取服务不可用")

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL string
	client    *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		serverURL: cfg.ServerURL,
		client:    &http.Client{Timeout: timeout},
	}
}

// ExtractPDF 调用 Tika 对 PDF 做逐页文本提取，返回拼接后的全文。
func (c *Client) ExtractPDF(ctx context.Context, fileReader io.Reader) (string, error) {
	return c.extract(ctx, fileReader, "application/pdf", nil)
}

// ExtractImage 调用 Tika 的 OCR 能力识别图片中的文本。
func (c *Client) ExtractImage(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	headers := map[string]string{
		// 强制走 OCR 路径，避免 Tika 对纯图片返回空元数据文本
		"X-Tika-OCRLanguage": "eng+chi_sim",
	}
	return c.extract(ctx, fileReader, detectMimeType(fileName), headers)
}

// extract 以 PUT /tika 的方式提交文件并读取纯文本响应。
func (c *Client) extract(ctx context.Context, fileReader io.Reader, contentType string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", fileReader)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", fmt.Errorf("%w: Tika 返回 [%d]: %s", ErrMalformedInput, resp.StatusCode, string(body))
		}
		return "", fmt.Errorf("%w: Tika 返回 [%d]: %s", ErrBackendUnavailable, resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	return buf.String(), nil
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		// fallback 默认
		return "application/octet-stream"
	}
	return mimeType
}
