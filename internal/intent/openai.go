package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const parseSystemPrompt = `Você extrai transações financeiras de mensagens de chat em português.
Responda somente com um objeto JSON com os campos:
"transacao" (boolean), "descricao" (string), "valor" (string com ponto decimal),
"categoria" (string), "data" (YYYY-MM-DD ou vazio se não mencionada),
"tipo" ("despesa" ou "receita").
Se a mensagem não descreve uma transação, responda {"transacao": false}.`

var replyTemplates = map[string]string{
	"conversation": `Você é um assistente financeiro no WhatsApp. Responda em português,
de forma curta e amigável. Se o usuário não descreveu uma transação, explique
que ele pode registrar gastos e receitas escrevendo, por exemplo,
"almoço 23,50".`,
	"welcome": `Você é um assistente financeiro no WhatsApp. Dê boas-vindas curtas em
português ao usuário recém-autenticado e explique como registrar um gasto.`,
}

// OpenAIClient implements Client and Transcriber using an OpenAI-compatible API.
type OpenAIClient struct {
	client             *openai.Client
	model              string
	transcriptionModel string
	logger             *slog.Logger
}

// NewOpenAIClient creates a client with an optional base URL override.
func NewOpenAIClient(log *slog.Logger, apiKey, baseURL, model, transcriptionModel string) *OpenAIClient {
	if log == nil {
		log = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if transcriptionModel == "" {
		transcriptionModel = openai.Whisper1
	}
	return &OpenAIClient{
		client:             openai.NewClientWithConfig(cfg),
		model:              model,
		transcriptionModel: transcriptionModel,
		logger:             log.With(slog.String("service", "intent")),
	}
}

type parseResponse struct {
	Transacao *bool `json:"transacao"`
	TransactionIntent
}

func (p *parseResponse) UnmarshalJSON(data []byte) error {
	var flag struct {
		Transacao *bool `json:"transacao"`
	}
	if err := json.Unmarshal(data, &flag); err != nil {
		return err
	}
	p.Transacao = flag.Transacao
	return json.Unmarshal(data, &p.TransactionIntent)
}

func (c *OpenAIClient) ParseIntent(ctx context.Context, text string) (*TransactionIntent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	content, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: parseSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	var parsed parseResponse
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &parsed); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	if parsed.Transacao != nil && !*parsed.Transacao {
		return nil, nil
	}
	intent := parsed.TransactionIntent
	if !intent.Valid() {
		c.logger.Debug("discarding incomplete intent", slog.String("descricao", intent.Descricao), slog.String("valor", intent.Valor))
		return nil, nil
	}
	return &intent, nil
}

func (c *OpenAIClient) GenerateReplyText(ctx context.Context, templateKey string, vars map[string]string) (string, error) {
	system, ok := replyTemplates[templateKey]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, templateKey)
	}
	content, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: renderVars(vars)},
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (c *OpenAIClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcriptionModel,
		FilePath: audioPath,
		Language: "pt",
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// renderVars writes vars as "key: value" lines in key order.
func renderVars(vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, vars[k])
	}
	return strings.TrimSpace(b.String())
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
