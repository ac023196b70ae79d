// Package validate adapts an HTTP render-and-diff service to the pipeline's
// Validator boundary.
package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/designmap/pkg/engine"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
)

// DefaultTimeout bounds one validation request when no client is supplied.
const DefaultTimeout = 60 * time.Second

// maxErrorBody caps how much of an error response is kept in the error.
const maxErrorBody = 512

// Errors.
var (
	ErrNoEndpoint     = errors.New("validator endpoint is required")
	ErrServiceStatus  = errors.New("validation service returned an error status")
	ErrInvalidVerdict = errors.New("validation service returned an invalid verdict")
)

// Config configures an HTTPValidator.
type Config struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Threshold float64       `mapstructure:"threshold"`
}

type request struct {
	Record engine.Record `json:"record"`
	Code   string        `json:"code"`
	Model  string        `json:"model,omitempty"`
}

type response struct {
	Passed    *bool   `json:"passed"`
	DiffRatio float64 `json:"diff_ratio"`
	Details   string  `json:"details"`
}

// HTTPValidator implements pipeline.Validator by POSTing the record and the
// generated code to a render-and-diff endpoint.
type HTTPValidator struct {
	endpoint  string
	token     string
	threshold float64
	client    *http.Client
}

// NewHTTPValidator creates an HTTPValidator. A positive Threshold overrides
// the service's verdict: the output passes when its diff ratio is at most
// the threshold.
func NewHTTPValidator(cfg Config, client *http.Client) (*HTTPValidator, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}

	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}

		client = &http.Client{Timeout: timeout}
	}

	return &HTTPValidator{
		endpoint:  endpoint,
		token:     cfg.Token,
		threshold: cfg.Threshold,
		client:    client,
	}, nil
}

// Validate implements pipeline.Validator.
func (validator *HTTPValidator) Validate(
	ctx context.Context, record engine.Record, generation pipeline.Generation,
) (pipeline.Verdict, error) {
	body, err := json.Marshal(request{Record: record, Code: generation.Code, Model: generation.Model})
	if err != nil {
		return pipeline.Verdict{}, fmt.Errorf("marshal validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, validator.endpoint, bytes.NewReader(body))
	if err != nil {
		return pipeline.Verdict{}, fmt.Errorf("build validation request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if validator.token != "" {
		req.Header.Set("Authorization", "Bearer "+validator.token)
	}

	resp, err := validator.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return pipeline.Verdict{}, pipeline.Transient(err)
		}

		return pipeline.Verdict{}, fmt.Errorf("validation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pipeline.Verdict{}, statusError(resp)
	}

	var decoded response

	err = json.NewDecoder(resp.Body).Decode(&decoded)
	if err != nil {
		return pipeline.Verdict{}, fmt.Errorf("%w: %w", ErrInvalidVerdict, err)
	}

	if decoded.Passed == nil {
		return pipeline.Verdict{}, fmt.Errorf("%w: missing passed", ErrInvalidVerdict)
	}

	verdict := pipeline.Verdict{Passed: *decoded.Passed, DiffRatio: decoded.DiffRatio, Details: decoded.Details}
	if validator.threshold > 0 {
		verdict.Passed = decoded.DiffRatio <= validator.threshold
	}

	return verdict, nil
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := fmt.Errorf("%w: %d %s", ErrServiceStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return pipeline.Transient(err)
	}

	return err
}
