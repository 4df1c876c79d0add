package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// httpProvider is a thin, hand-rolled HTTP client over a transcription and
// summarisation REST endpoint, in the shape of pushgw's APNsSender: one
// *http.Client with a fixed timeout, a bearer credential, and endpoint
// constants baked in per provider. No SDK is used, matching that the
// teacher never reaches for one for an external HTTP integration.
type httpProvider struct {
	name          string
	client        *http.Client
	transcribeURL string
	summariseURL  string
	apiKey        string
}

// newHTTPProvider builds a provider for one of the recognised remote
// backends. The endpoint constants are placeholders for the real hosted
// APIs; what matters for this pipeline is the request/response shape below.
func newHTTPProvider(name, baseURL, apiKey string) *httpProvider {
	return &httpProvider{
		name:          name,
		client:        &http.Client{Timeout: 60 * time.Second},
		transcribeURL: baseURL + "/v1/transcriptions",
		summariseURL:  baseURL + "/v1/summaries",
		apiKey:        apiKey,
	}
}

func (p *httpProvider) Name() string { return p.name }

type transcribeRequest struct {
	Language string `json:"language"`
}

type transcribeResponse struct {
	Text            string  `json:"text"`
	Confidence      float64 `json:"confidence"`
	DurationSeconds float64 `json:"duration"`
	Summary         string  `json:"summary,omitempty"`
}

// Transcribe uploads the audio file and the target language, returning the
// provider's best transcript. A missing API key fails fast rather than
// making a request that the backend would reject anyway.
func (p *httpProvider) Transcribe(ctx context.Context, path, language string) (TranscriptionResult, error) {
	if p.apiKey == "" {
		return TranscriptionResult{}, fmt.Errorf("%s: no api key configured", p.name)
	}

	f, err := os.Open(path)
	if err != nil {
		return TranscriptionResult{}, fmt.Errorf("%s: opening audio file: %w", p.name, err)
	}
	defer f.Close()

	meta, err := json.Marshal(transcribeRequest{Language: language})
	if err != nil {
		return TranscriptionResult{}, fmt.Errorf("%s: encoding request: %w", p.name, err)
	}

	body := bytes.NewBuffer(meta)
	if _, err := io.Copy(body, f); err != nil {
		return TranscriptionResult{}, fmt.Errorf("%s: reading audio file: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.transcribeURL, body)
	if err != nil {
		return TranscriptionResult{}, fmt.Errorf("%s: creating request: %w", p.name, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return TranscriptionResult{}, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return TranscriptionResult{}, fmt.Errorf("%s: unexpected status %d: %s", p.name, resp.StatusCode, string(respBody))
	}

	var tr transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return TranscriptionResult{}, fmt.Errorf("%s: decoding response: %w", p.name, err)
	}

	return TranscriptionResult{
		Text:            tr.Text,
		Confidence:      tr.Confidence,
		DurationSeconds: tr.DurationSeconds,
		Language:        language,
		ProviderSummary: tr.Summary,
	}, nil
}

type summariseRequest struct {
	Text     string   `json:"text"`
	Language string   `json:"language"`
	Hints    []string `json:"hints,omitempty"`
}

type summariseResponse struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"keyPoints,omitempty"`
	ActionItems []string `json:"actionItems,omitempty"`
	Decisions   []string `json:"decisions,omitempty"`
	Topics      []string `json:"topics,omitempty"`
}

// Summarise posts the composed text for a provider-generated summary.
func (p *httpProvider) Summarise(ctx context.Context, text, language string, hints SummaryHints) (SummaryResult, error) {
	if p.apiKey == "" {
		return SummaryResult{}, fmt.Errorf("%s: no api key configured", p.name)
	}

	payload, err := json.Marshal(summariseRequest{Text: text, Language: language})
	if err != nil {
		return SummaryResult{}, fmt.Errorf("%s: encoding request: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.summariseURL, bytes.NewReader(payload))
	if err != nil {
		return SummaryResult{}, fmt.Errorf("%s: creating request: %w", p.name, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return SummaryResult{}, fmt.Errorf("%s: request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return SummaryResult{}, fmt.Errorf("%s: unexpected status %d: %s", p.name, resp.StatusCode, string(respBody))
	}

	var sr summariseResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return SummaryResult{}, fmt.Errorf("%s: decoding response: %w", p.name, err)
	}

	return SummaryResult{
		Source:      p.name,
		Summary:     sr.Summary,
		KeyPoints:   sr.KeyPoints,
		ActionItems: sr.ActionItems,
		Decisions:   sr.Decisions,
		Topics:      sr.Topics,
	}, nil
}

const (
	openAIBaseURL     = "https://api.openai.com"
	deepgramBaseURL   = "https://api.deepgram.com"
	phoWhisperBaseURL = "https://api.pho-whisper.local"
)

// newOpenAIProvider, newDeepgramProvider and newPhoWhisperProvider each wire
// one recognised provider name to its hosted endpoint.
func newOpenAIProvider(apiKey string) *httpProvider {
	return newHTTPProvider("openai", openAIBaseURL, apiKey)
}

func newDeepgramProvider(apiKey string) *httpProvider {
	return newHTTPProvider("deepgram", deepgramBaseURL, apiKey)
}

func newPhoWhisperProvider(apiKey string) *httpProvider {
	return newHTTPProvider("pho-whisper", phoWhisperBaseURL, apiKey)
}
