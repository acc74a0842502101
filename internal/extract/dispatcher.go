package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"doc-rag-go/internal/model"
	"doc-rag-go/pkg/log"
	"doc-rag-go/pkg/tika"
)

// Dispatcher 按选定策略调用提取协作方并规范化返回文本。
// 单个提取器的失败只中止该文档的入库，不影响其他文档。
type Dispatcher struct {
	tikaClient *tika.Client
}

// NewDispatcher 创建一个新的 Dispatcher 实例。
func NewDispatcher(tikaClient *tika.Client) *Dispatcher {
	return &Dispatcher{tikaClient: tikaClient}
}

// Extract 执行指定策略的文本提取并规范化结果。
// 提取出的文本为空时返回 ExtractionFailure，绝不把空结果当成空文档静默返回。
func (d *Dispatcher) Extract(ctx context.Context, strategy Strategy, path, fileName string) (string, error) {
	var (
		text string
		err  error
	)

	switch strategy {
	case StrategyPlainText:
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			err = model.WrapError(model.ErrKindExtraction, "读取纯文本文件失败", err)
		} else {
			text = string(data)
		}
	case StrategyOCR:
		text, err = d.callTika(ctx, path, func(f *os.File) (string, error) {
			return d.tikaClient.ExtractImage(ctx, f, fileName)
		})
	case StrategyPDF:
		text, err = d.callTika(ctx, path, func(f *os.File) (string, error) {
			return d.tikaClient.ExtractPDF(ctx, f)
		})
	default:
		return "", model.NewError(model.ErrKindValidation, fmt.Sprintf("未知的提取策略: %s", strategy))
	}

	if err != nil {
		log.Errorf("[Dispatcher] 提取失败, strategy: %s, file: %s, error: %v", strategy, fileName, err)
		return "", err
	}

	normalized := Normalize(text)
	if normalized == "" {
		return "", model.NewError(model.ErrKindExtraction,
			fmt.Sprintf("文件 '%s' 未提取出任何文本内容", fileName))
	}
	log.Infof("[Dispatcher] 提取成功, strategy: %s, file: %s, 长度: %d 字符",
		strategy, fileName, utf8.RuneCountInString(normalized))
	return normalized, nil
}

// callTika 打开已存储的文件并交给协作方，把协作方错误分类为
// “输入不合法”与“提取器不可用”两种 ExtractionFailure。
func (d *Dispatcher) callTika(ctx context.Context, path string, fn func(*os.File) (string, error)) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", model.WrapError(model.ErrKindExtraction, "打开已存储文件失败", err)
	}
	defer f.Close()

	text, err := fn(f)
	if err != nil {
		switch {
		case errors.Is(err, tika.ErrMalformedInput):
			return "", model.WrapError(model.ErrKindExtraction, "输入文件格式不合法", err)
		case errors.Is(err, tika.ErrBackendUnavailable):
			return "", model.WrapError(model.ErrKindExtraction, "提取服务不可用", err)
		default:
			return "", model.WrapError(model.ErrKindExtraction, "文本提取失败", err)
		}
	}
	return text, nil
}

var (
	reBlankRuns  = regexp.MustCompile(`\n{3,}`)
	reLineTrails = regexp.MustCompile(`[ \t]+\n`)
)

// Normalize 规范化提取文本：
// 修正非法 UTF-8，统一换行符，去除行尾空白，折叠连续空行，去除首尾空白。
func Normalize(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = reLineTrails.ReplaceAllString(text, "\n")
	text = reBlankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
