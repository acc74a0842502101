// Package extract 实现文本提取调度：类型检测、封闭策略集的选择与提取结果的规范化。
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"doc-rag-go/internal/model"
)

// Strategy 是封闭的提取策略集合中的一个标签。
type Strategy string

const (
	// StrategyPlainText 直接读取纯文本文件。
	StrategyPlainText Strategy = "plain_text"
	// StrategyOCR 通过 OCR 协作方识别图片中的文本。
	StrategyOCR Strategy = "ocr"
	// StrategyPDF 通过 PDF 协作方做逐页文本提取。
	StrategyPDF Strategy = "pdf"
)

// 按扩展名的快速映射；命不中时退回到内容嗅探。
var extStrategies = map[string]Strategy{
	".txt":  StrategyPlainText,
	".md":   StrategyPlainText,
	".csv":  StrategyPlainText,
	".log":  StrategyPlainText,
	".json": StrategyPlainText,
	".pdf":  StrategyPDF,
	".png":  StrategyOCR,
	".jpg":  StrategyOCR,
	".jpeg": StrategyOCR,
	".tiff": StrategyOCR,
	".bmp":  StrategyOCR,
	".gif":  StrategyOCR,
}

// Detect 结合声明的文件名与已存储文件的内容嗅探选择提取策略。
// 不支持的类型返回 ValidationError，绝不猜测。
func Detect(fileName, storedPath string) (Strategy, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if s, ok := extStrategies[ext]; ok {
		return s, nil
	}

	mt, err := mimetype.DetectFile(storedPath)
	if err != nil {
		return "", model.WrapError(model.ErrKindValidation,
			fmt.Sprintf("无法识别文件类型: %s", fileName), err)
	}
	switch {
	case mt.Is("application/pdf"):
		return StrategyPDF, nil
	case strings.HasPrefix(mt.String(), "image/"):
		return StrategyOCR, nil
	case strings.HasPrefix(mt.String(), "text/"):
		return StrategyPlainText, nil
	}
	return "", model.NewError(model.ErrKindValidation,
		fmt.Sprintf("不支持的文件类型: %s (%s)", fileName, mt.String()))
}
