package validation_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/changefeed/internal/errors"
	"github.com/listenupapp/changefeed/internal/validation"
)

type testConfig struct {
	Path       string        `env:"WATCH_PATH" validate:"required,dir"`
	Backend    string        `env:"WATCH_BACKEND" validate:"oneof=auto fsnotify inotify"`
	BufferSize int           `env:"WATCH_BUFFER_SIZE" validate:"min=4096,max=65536"`
	Window     time.Duration `env:"WATCH_RENAME_WINDOW" validate:"gt=0s"`
	Label      string        `validate:"omitempty,uppercase"`
}

func validConfig(t *testing.T) testConfig {
	return testConfig{
		Path:       t.TempDir(),
		Backend:    "auto",
		BufferSize: 4096,
		Window:     50 * time.Millisecond,
	}
}

func detailsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var domainErr *errors.Error
	require.True(t, errors.As(err, &domainErr), "expected a domain error, got %T", err)
	assert.Equal(t, errors.CodeInvalidConfiguration, domainErr.Code)
	details, ok := domainErr.Details.(map[string]string)
	require.True(t, ok)
	return details
}

func TestValidator_Valid(t *testing.T) {
	assert.NoError(t, validation.New().Validate(validConfig(t)))
}

func TestValidator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*testConfig)
		field   string
		message string
	}{
		{"missing path", func(c *testConfig) { c.Path = "" }, "WATCH_PATH", "is required"},
		{"path not a directory", func(c *testConfig) { c.Path = "/does/not/exist" }, "WATCH_PATH", "must be an existing directory"},
		{"unknown backend", func(c *testConfig) { c.Backend = "kqueue" }, "WATCH_BACKEND", "must be one of: auto fsnotify inotify"},
		{"buffer too small", func(c *testConfig) { c.BufferSize = 1024 }, "WATCH_BUFFER_SIZE", "must be at least 4096"},
		{"buffer too large", func(c *testConfig) { c.BufferSize = 1 << 20 }, "WATCH_BUFFER_SIZE", "must be at most 65536"},
		{"zero window", func(c *testConfig) { c.Window = 0 }, "WATCH_RENAME_WINDOW", "must be greater than 0s"},
		{"untagged field", func(c *testConfig) { c.Label = "lower" }, "Label", "is not a valid uppercase value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)

			err := validation.New().Validate(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))

			details := detailsOf(t, err)
			assert.Equal(t, tt.message, details[tt.field])
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidator_ReportsEveryField(t *testing.T) {
	cfg := validConfig(t)
	cfg.Path = ""
	cfg.BufferSize = 0

	err := validation.New().Validate(cfg)
	details := detailsOf(t, err)

	assert.Len(t, details, 2)
	assert.Contains(t, details, "WATCH_PATH")
	assert.Contains(t, details, "WATCH_BUFFER_SIZE")
}

func TestValidator_RegisterString(t *testing.T) {
	type masked struct {
		Changes string `env:"WATCH_CHANGES" validate:"required,changes"`
	}

	v := validation.New()
	require.NoError(t, v.RegisterString("changes", func(s string) bool {
		return !strings.Contains(s, "bogus")
	}))

	assert.NoError(t, v.Validate(masked{Changes: "created"}))

	err := v.Validate(masked{Changes: "bogus"})
	require.Error(t, err)
	assert.Equal(t, "is not a valid changes value", detailsOf(t, err)["WATCH_CHANGES"])
}

func TestValidator_NonStruct(t *testing.T) {
	err := validation.New().Validate("not a struct")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
}
