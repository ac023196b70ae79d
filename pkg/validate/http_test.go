package validate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/designmap/pkg/engine"
	"github.com/Sumatoshi-tech/designmap/pkg/pipeline"
	"github.com/Sumatoshi-tech/designmap/pkg/validate"
)

func newValidator(t *testing.T, cfg validate.Config, handler http.HandlerFunc) *validate.HTTPValidator {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.Endpoint = server.URL

	validator, err := validate.NewHTTPValidator(cfg, server.Client())
	require.NoError(t, err)

	return validator
}

func TestValidate_Passed(t *testing.T) {
	t.Parallel()

	validator := newValidator(t, validate.Config{Token: "secret"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "<Button/>", body["code"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"passed": true, "diff_ratio": 0.01, "details": "ok"}`))
	})

	verdict, err := validator.Validate(context.Background(), engine.Record{NodeID: "1:1"}, pipeline.Generation{Code: "<Button/>"})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Verdict{Passed: true, DiffRatio: 0.01, Details: "ok"}, verdict)
}

func TestValidate_Threshold(t *testing.T) {
	t.Parallel()

	validator := newValidator(t, validate.Config{Threshold: 0.05}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"passed": true, "diff_ratio": 0.2}`))
	})

	verdict, err := validator.Validate(context.Background(), engine.Record{}, pipeline.Generation{})
	require.NoError(t, err)
	assert.False(t, verdict.Passed)
}

func TestValidate_StatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			validator := newValidator(t, validate.Config{}, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := validator.Validate(context.Background(), engine.Record{}, pipeline.Generation{})
			require.ErrorIs(t, err, validate.ErrServiceStatus)
			assert.Equal(t, tt.transient, pipeline.IsTransient(err))
		})
	}
}

func TestValidate_InvalidVerdict(t *testing.T) {
	t.Parallel()

	validator := newValidator(t, validate.Config{}, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"diff_ratio": 0.2}`))
	})

	_, err := validator.Validate(context.Background(), engine.Record{}, pipeline.Generation{})
	assert.ErrorIs(t, err, validate.ErrInvalidVerdict)
}

func TestValidate_TimeoutIsTransient(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	validator, err := validate.NewHTTPValidator(
		validate.Config{Endpoint: server.URL},
		&http.Client{Timeout: 20 * time.Millisecond},
	)
	require.NoError(t, err)

	_, err = validator.Validate(context.Background(), engine.Record{}, pipeline.Generation{})
	require.Error(t, err)
	assert.True(t, pipeline.IsTransient(err))
}

func TestNewHTTPValidator_RequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := validate.NewHTTPValidator(validate.Config{}, nil)
	assert.ErrorIs(t, err, validate.ErrNoEndpoint)
}
