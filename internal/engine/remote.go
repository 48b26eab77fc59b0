package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
	"github.com/sells-group/conjoint-cli/internal/resilience"
)

// Remote engine endpoints.
const (
	EstimatePath = "/estimate_from_survey_export"
	SimulatePath = "/simulate"
)

// RemoteComputer calls the remote conjoint engine over HTTP with a bounded
// request timeout and retries on transient failures.
type RemoteComputer struct {
	baseURL string
	client  *http.Client
	retry   resilience.RetryConfig
}

// NewRemoteComputer creates a client for the engine at baseURL. maxAttempts
// counts the first try; values below 1 default to the package default.
func NewRemoteComputer(baseURL string, timeout time.Duration, maxAttempts int) *RemoteComputer {
	retry := resilience.DefaultRetryConfig()
	if maxAttempts > 0 {
		retry.MaxAttempts = maxAttempts
	}
	return &RemoteComputer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
	}
}

// BaseURL returns the configured engine base URL.
func (r *RemoteComputer) BaseURL() string {
	return r.baseURL
}

// Estimate posts the survey workbook and the JSON-serialized attribute
// encoding as a multipart body to the engine's estimation endpoint.
func (r *RemoteComputer) Estimate(ctx context.Context, surveyPath string, attrs []conjoint.Attribute) (*conjoint.Estimation, error) {
	attrJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, eris.Wrap(err, "engine: marshal attributes")
	}

	return resilience.DoVal(ctx, r.retry, "estimate", func(ctx context.Context) (*conjoint.Estimation, error) {
		body, contentType, err := estimateBody(surveyPath, attrJSON)
		if err != nil {
			return nil, err
		}

		var result conjoint.Estimation
		if err := r.post(ctx, EstimatePath, contentType, body, &result); err != nil {
			return nil, err
		}
		return &result, nil
	})
}

// Simulate posts the scenario set as JSON to the engine's simulation
// endpoint.
func (r *RemoteComputer) Simulate(ctx context.Context, req conjoint.SimulationRequest) (*conjoint.SimulationResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "engine: marshal simulation request")
	}

	return resilience.DoVal(ctx, r.retry, "simulate", func(ctx context.Context) (*conjoint.SimulationResult, error) {
		var result conjoint.SimulationResult
		if err := r.post(ctx, SimulatePath, "application/json", bytes.NewReader(payload), &result); err != nil {
			return nil, err
		}
		return &result, nil
	})
}

func estimateBody(surveyPath string, attrJSON []byte) (io.Reader, string, error) {
	f, err := os.Open(surveyPath)
	if err != nil {
		return nil, "", eris.Wrapf(err, "engine: open survey file %s", surveyPath)
	}
	defer f.Close() //nolint:errcheck

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(surveyPath))
	if err != nil {
		return nil, "", eris.Wrap(err, "engine: create file part")
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", eris.Wrap(err, "engine: copy survey file")
	}
	if err := w.WriteField("attributes", string(attrJSON)); err != nil {
		return nil, "", eris.Wrap(err, "engine: write attributes field")
	}
	if err := w.Close(); err != nil {
		return nil, "", eris.Wrap(err, "engine: close multipart writer")
	}

	return &buf, w.FormDataContentType(), nil
}

// post sends the request and decodes the JSON response into out. 5xx
// responses become transient errors (fallback-eligible); 4xx responses
// become RemoteError with the detail from the body.
func (r *RemoteComputer) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	url := r.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return eris.Wrapf(err, "engine: create request %s", url)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "engine: call %s", url)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "engine: read response from %s", url)
	}

	if resp.StatusCode >= 500 {
		return resilience.NewTransientError(
			eris.Errorf("engine: %s returned %d: %s", url, resp.StatusCode, truncate(respBody, 512)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode >= 400 {
		return &RemoteError{StatusCode: resp.StatusCode, Detail: errorDetail(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrapf(err, "engine: decode response from %s", url)
	}

	zap.L().Debug("engine: remote call succeeded",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}

// errorDetail pulls the human-readable message out of an engine error body
// ({"detail": ...} from the service, {"error": ...} from older builds).
func errorDetail(body []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Detail != "":
			return payload.Detail
		case payload.Error != "":
			return payload.Error
		case payload.Message != "":
			return payload.Message
		}
	}
	return truncate(body, 512)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
