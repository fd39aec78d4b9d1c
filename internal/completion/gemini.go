package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2/google"
)

var geminiModels = map[string]string{
	"gemini-flash": "gemini-2.5-flash",
	"gemini-pro":   "gemini-2.5-pro",
}

const (
	geminiGenerateEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"
	vertexGenerateEndpoint = "https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent"
	vertexDefaultRegion    = "us-central1"
)

// GeminiPort fronts Gemini's generateContent REST API. With GCP_PROJECT
// set it targets Vertex AI using application default credentials;
// otherwise it targets AI Studio with GEMINI_API_KEY.
type GeminiPort struct {
	model      string
	apiKey     string
	project    string
	region     string
	httpClient *http.Client
}

// NewGeminiPort builds a port for a model alias ("gemini-flash",
// "gemini-pro"). Unknown aliases fall back to gemini-flash.
func NewGeminiPort(model string) *GeminiPort {
	modelID := geminiModels[model]
	if modelID == "" {
		modelID = geminiModels["gemini-flash"]
	}

	region := os.Getenv("GCP_REGION")
	if region == "" {
		region = vertexDefaultRegion
	}

	return &GeminiPort{
		model:      modelID,
		apiKey:     os.Getenv("GEMINI_API_KEY"),
		project:    os.Getenv("GCP_PROJECT"),
		region:     region,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  *geminiGenCfg   `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenCfg struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int64   `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (p *GeminiPort) Complete(ctx context.Context, cp Params) (Result, error) {
	contents := make([]geminiContent, 0, len(cp.Messages))
	for _, m := range cp.Messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	reqBody := geminiRequest{
		Contents: contents,
		GenerationConfig: &geminiGenCfg{
			Temperature:     cp.Temperature,
			MaxOutputTokens: cp.MaxTokens,
		},
	}
	if cp.System != "" {
		reqBody.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: cp.System}},
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := p.newRequest(ctx, bodyBytes)
	if err != nil {
		return Result{}, err
	}

	res, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		errBody, _ := io.ReadAll(res.Body)
		return Result{}, fmt.Errorf("%w: gemini status 429: %s", ErrRateLimited, Truncate(string(errBody), 200))
	}
	if res.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(res.Body)
		return Result{}, fmt.Errorf("gemini api error (status %d): %s", res.StatusCode, Truncate(string(errBody), 500))
	}

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return Result{}, fmt.Errorf("parse response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return Result{}, ErrEmptyResponse
	}

	result := Result{Text: resp.Candidates[0].Content.Parts[0].Text}
	if resp.UsageMetadata != nil {
		result.Usage.InputTokens = resp.UsageMetadata.PromptTokenCount
		result.Usage.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}
	return result, nil
}

// CompleteStream is not available over the plain generateContent endpoint.
func (p *GeminiPort) CompleteStream(ctx context.Context, cp Params) (<-chan StreamEvent, error) {
	return nil, ErrStreamingUnsupported
}

func (p *GeminiPort) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	if p.project != "" {
		url := fmt.Sprintf(vertexGenerateEndpoint, p.region, p.project, p.region, p.model)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		token, err := p.vertexToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	}

	url := fmt.Sprintf(geminiGenerateEndpoint+"?key=%s", p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// vertexToken obtains an OAuth2 token via application default credentials.
func (p *GeminiPort) vertexToken(ctx context.Context) (string, error) {
	ts, err := google.DefaultTokenSource(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return "", fmt.Errorf("get default token source: %w (hint: run 'gcloud auth application-default login' or set GOOGLE_APPLICATION_CREDENTIALS)", err)
	}
	token, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	return token.AccessToken, nil
}
