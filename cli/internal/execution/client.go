package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BioHazard786/Warproom/cli/internal/document"
)

var (
	ErrUnavailable         = errors.New("execution service unavailable")
	ErrTimeout             = errors.New("execution service timed out")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrBadResponse         = errors.New("malformed execution service response")
)

// Limits bound one execution inside the sandbox.
type Limits struct {
	WallTime time.Duration
	MemoryB  int64
	NanoCPUs int64
}

const (
	defaultWallTime = 10 * time.Second
	defaultMemoryB  = 256 << 20
	defaultNanoCPUs = 1_000_000_000

	maxResponseBytes = 1 << 20
)

func (l Limits) withDefaults() Limits {
	if l.WallTime <= 0 {
		l.WallTime = defaultWallTime
	}
	if l.MemoryB <= 0 {
		l.MemoryB = defaultMemoryB
	}
	if l.NanoCPUs <= 0 {
		l.NanoCPUs = defaultNanoCPUs
	}
	return l
}

type limitsPayload struct {
	WallTimeMs int64 `json:"wallTimeMs"`
	MemoryB    int64 `json:"memoryBytes"`
	NanoCPUs   int64 `json:"nanoCpus"`
}

type testCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

type runRequest struct {
	Language  string        `json:"language"`
	Code      string        `json:"code"`
	TestCases []testCase    `json:"testCases"`
	Limits    limitsPayload `json:"limits"`
}

type submitRequest struct {
	Language  string        `json:"language"`
	Code      string        `json:"code"`
	ProblemID string        `json:"problemId"`
	Limits    limitsPayload `json:"limits"`
}

type caseResult struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
	Stderr   string `json:"stderr"`
}

type runResponse struct {
	Results []caseResult `json:"results"`
	Error   string       `json:"error,omitempty"`
}

type submitResponse struct {
	Verdict     string      `json:"verdict"`
	FailingCase *caseResult `json:"failingCase,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Client calls the external execution service over HTTP.
type Client struct {
	client  *http.Client
	baseURL string
	limits  Limits
}

// NewClient talks to baseURL. timeout bounds each whole request; zero
// leaves it to the caller's context.
func NewClient(baseURL string, timeout time.Duration, limits Limits) *Client {
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		limits:  limits.withDefaults(),
	}
}

// Run executes code against every vector.
func (c *Client) Run(ctx context.Context, lang document.Language, code string, vectors []document.TestVector) (RunResult, error) {
	req := runRequest{
		Language:  string(lang),
		Code:      code,
		TestCases: make([]testCase, 0, len(vectors)),
		Limits:    c.limitsPayload(),
	}
	for _, v := range vectors {
		req.TestCases = append(req.TestCases, testCase{Input: v.Input, Expected: v.Expected})
	}

	var resp runResponse
	if err := c.post(ctx, "/run", req, &resp); err != nil {
		return RunResult{}, err
	}
	if resp.Error != "" {
		return RunResult{}, mapServiceError(resp.Error)
	}

	out := RunResult{Kind: KindCompleted, Vectors: make([]VectorResult, 0, len(resp.Results))}
	for _, r := range resp.Results {
		out.Vectors = append(out.Vectors, VectorResult(r))
	}
	return out, nil
}

// Submit judges code against the problem's hidden vectors.
func (c *Client) Submit(ctx context.Context, lang document.Language, code, problemID string) (SubmissionResult, error) {
	req := submitRequest{
		Language:  string(lang),
		Code:      code,
		ProblemID: problemID,
		Limits:    c.limitsPayload(),
	}

	var resp submitResponse
	if err := c.post(ctx, "/submit", req, &resp); err != nil {
		return SubmissionResult{}, err
	}
	if resp.Error != "" {
		return SubmissionResult{}, mapServiceError(resp.Error)
	}
	if resp.Verdict == "" {
		return SubmissionResult{}, fmt.Errorf("%w: missing verdict", ErrBadResponse)
	}

	out := SubmissionResult{Kind: KindCompleted, Verdict: Verdict(resp.Verdict)}
	if resp.FailingCase != nil {
		v := VectorResult(*resp.FailingCase)
		out.FailingVector = &v
	}
	return out, nil
}

func (c *Client) limitsPayload() limitsPayload {
	return limitsPayload{
		WallTimeMs: c.limits.WallTime.Milliseconds(),
		MemoryB:    c.limits.MemoryB,
		NanoCPUs:   c.limits.NanoCPUs,
	}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return mapServiceError(e.Error)
		}
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// mapServiceError turns the service's error codes into sentinel errors.
func mapServiceError(code string) error {
	switch code {
	case "sandbox_unavailable":
		return ErrUnavailable
	case "timeout":
		return ErrTimeout
	case "unsupported_language":
		return ErrUnsupportedLanguage
	}
	return fmt.Errorf("execution service: %s", code)
}
