package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"options-trader/internal/config"
)

// Client 封装信号解析的 OpenAI 调用逻辑。
type Client struct {
	cfg    config.OpenAIConfig
	logger *zap.Logger
	sdk    *openai.Client
	now    func() time.Time
}

// NewClient 使用给定配置创建信号解析客户端。
func NewClient(cfg config.OpenAIConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		sdk:    openai.NewClientWithConfig(sdkConfig),
		now:    time.Now,
	}, nil
}

// ParseSignal 将自由文本解析为结构化交易信号。解析失败返回错误，
// 调用方绝不在解析失败时发起对账。
func (c *Client) ParseSignal(ctx context.Context, text string) (TradeSignal, error) {
	if strings.TrimSpace(text) == "" {
		return TradeSignal{}, errors.New("signal: 输入文本不能为空")
	}
	if c.cfg.Model == "" {
		return TradeSignal{}, errors.New("openai model 不能为空")
	}

	today := c.now()
	expiry := DetermineExpiry(text, today)
	prompt := BuildPrompt(text, today.Format("02/01/2006"), expiry.Format("2006-01-02"))

	response, err := c.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		c.logger.Error("调用OpenAI失败", zap.Error(err))
		return TradeSignal{}, fmt.Errorf("signal: 调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return TradeSignal{}, errors.New("signal: OpenAI 返回结果为空")
	}

	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return TradeSignal{}, errors.New("signal: OpenAI 返回内容为空")
	}

	parsed, err := parseSignalContent(rawContent)
	if err != nil {
		c.logger.Error("解析模型输出失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return TradeSignal{}, err
	}

	if err := parsed.Validate(); err != nil {
		return TradeSignal{}, fmt.Errorf("signal: 信号校验失败: %w", err)
	}

	c.logger.Info("信号解析成功",
		zap.String("symbol", parsed.Symbol),
		zap.String("expiry", parsed.Expiry),
		zap.Float64("buy1", parsed.Buy1),
	)

	return parsed, nil
}

func parseSignalContent(content string) (TradeSignal, error) {
	jsonPayload, err := extractJSON(stripFences(content))
	if err != nil {
		return TradeSignal{}, err
	}

	var parsed TradeSignal
	if err = json.Unmarshal(jsonPayload, &parsed); err != nil {
		return TradeSignal{}, fmt.Errorf("signal: 解析信号JSON失败: %w", err)
	}

	return parsed, nil
}

// stripFences 去掉模型输出中可能包裹的 ```json 代码围栏。
func stripFences(content string) string {
	content = strings.ReplaceAll(content, "```json", "")
	content = strings.ReplaceAll(content, "```", "")
	return strings.TrimSpace(content)
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("signal: 模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
