package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"callpulse/internal/convstate"
)

// endCallMarker is what the model is instructed to append when the survey
// has run its course. It is stripped before the reply is spoken.
const endCallMarker = "[END_CALL]"

const turnInstructions = "When the survey is finished or the customer wants to stop, append the exact token " +
	endCallMarker + " to the end of your reply."

const summarizePrompt = `Analyze the customer survey call transcript below and respond with ONLY a JSON object:
{"summary": "<2-3 sentence summary>", "sentiment": "<positive|neutral|negative>", "key_issues": ["<short issue>", ...]}

Transcript:
%s`

// OpenAI is the production Engine backed by an OpenAI chat model via
// langchaingo.
type OpenAI struct {
	llm         llms.Model
	temperature float64
}

func NewOpenAI(apiKey, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("dialogue: openai api key is required")
	}
	llm, err := openai.New(openai.WithToken(apiKey), openai.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("dialogue: openai init failed: %w", err)
	}
	return &OpenAI{llm: llm, temperature: 0.4}, nil
}

func (e *OpenAI) GenerateTurn(ctx context.Context, utterance string, conv convstate.Context) (Result, error) {
	msgs := toMessages(conv, turnInstructions)

	resp, err := e.llm.GenerateContent(ctx, msgs,
		llms.WithTemperature(e.temperature),
		llms.WithMaxTokens(200),
	)
	if err != nil {
		return Result{}, fmt.Errorf("dialogue: turn generation failed: %w", err)
	}
	text := firstChoice(resp)
	if text == "" {
		return Result{}, fmt.Errorf("dialogue: empty model response")
	}

	end := strings.Contains(text, endCallMarker)
	reply := strings.TrimSpace(strings.ReplaceAll(text, endCallMarker, ""))
	if reply == "" {
		reply = "Thank you for your time."
		end = true
	}
	return Result{Reply: reply, EndCall: end}, nil
}

func (e *OpenAI) Summarize(ctx context.Context, conv convstate.Context) (Summary, error) {
	prompt := fmt.Sprintf(summarizePrompt, conv.Transcript())

	text, err := llms.GenerateFromSinglePrompt(ctx, e.llm, prompt,
		llms.WithTemperature(0),
		llms.WithMaxTokens(400),
	)
	if err != nil {
		return Summary{}, fmt.Errorf("dialogue: summarization failed: %w", err)
	}
	return ParseSummary(text)
}

func (e *OpenAI) ClosingMessage(conv convstate.Context, reason string) string {
	name := conv.CustomerName
	if name == "" {
		return "Thank you for taking the time to share your feedback with us today. Have a great day. Goodbye!"
	}
	return fmt.Sprintf("Thank you, %s, for taking the time to share your feedback with us today. Have a great day. Goodbye!", name)
}

// ParseSummary decodes the model's JSON analysis, repairing the common LLM
// JSON mistakes (fences, trailing commas, single quotes) before decoding.
func ParseSummary(raw string) (Summary, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))

	var s Summary
	if err := json.Unmarshal([]byte(cleaned), &s); err != nil {
		repaired, repErr := jsonrepair.JSONRepair(cleaned)
		if repErr != nil {
			return Summary{}, fmt.Errorf("dialogue: summary is not valid JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &s); err != nil {
			return Summary{}, fmt.Errorf("dialogue: summary decode failed after repair: %w", err)
		}
	}

	switch s.Sentiment {
	case "positive", "neutral", "negative":
	default:
		s.Sentiment = "neutral"
	}
	return s, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func toMessages(conv convstate.Context, extraSystem string) []llms.MessageContent {
	msgs := make([]llms.MessageContent, 0, len(conv.History)+1)
	for _, t := range conv.History {
		var role llms.ChatMessageType
		switch t.Role {
		case convstate.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case convstate.RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		msgs = append(msgs, llms.TextParts(role, t.Content))
	}
	if extraSystem != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, extraSystem))
	}
	return msgs
}

func firstChoice(resp *llms.ContentResponse) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Content)
}
