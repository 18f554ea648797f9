// Package scoring grades a finished interview from its transcript.
package scoring

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/leialabs/leia-realtime/pkg/gateway/store"
)

// Result is the rubric the scoring model fills in.
type Result struct {
	Overall        int    `json:"overall"`
	Communication  int    `json:"communication"`
	TechnicalDepth int    `json:"technicalDepth"`
	Summary        string `json:"summary"`
}

type Scorer interface {
	Score(ctx context.Context, turns []store.Transcription) (Result, error)
}

const systemPrompt = `You grade technical interview transcripts. Score the candidate
(the non-interviewer speaker) from 1 to 10 on each axis and reply with JSON only:
{"overall": n, "communication": n, "technicalDepth": n, "summary": "two sentences"}`

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type OpenAIScorer struct {
	client chatCompleter
	model  string
}

func NewOpenAIScorer(apiKey, model string) *OpenAIScorer {
	return &OpenAIScorer{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (s *OpenAIScorer) Score(ctx context.Context, turns []store.Transcription) (Result, error) {
	if len(turns) == 0 {
		return Result{}, errors.New("transcript is empty")
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: renderTranscript(turns)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "score transcript")
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("scoring model returned no choices")
	}

	var out Result
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		return Result{}, errors.Wrap(err, "parse scoring response")
	}
	if out.Overall < 1 || out.Overall > 10 {
		return Result{}, errors.Errorf("overall score %d outside 1..10", out.Overall)
	}
	return out, nil
}

func renderTranscript(turns []store.Transcription) string {
	var b strings.Builder
	for _, t := range turns {
		if t.IsLeia {
			b.WriteString("Interviewer: ")
		} else {
			b.WriteString("Candidate: ")
		}
		b.WriteString(t.Transcript)
		b.WriteString("\n")
	}
	return b.String()
}
