package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	. "github.com/mkrupp/shopcart/internal/infra/config"
)

type testConfig struct {
	EnvConfig

	StringValue   string        `env:"STRING_VALUE" default:"default"`
	IntValue      int           `env:"INT_VALUE" default:"42"`
	BoolValue     bool          `env:"BOOL_VALUE" default:"true"`
	DurationValue time.Duration `env:"DURATION_VALUE" default:"2s"`
	ListValue     []string      `env:"LIST_VALUE" default:"user"`
	NoEnvTag      string
	Nested        testNestedConfig `envPrefix:"NESTED_"`
}

type testNestedConfig struct {
	NestedString string `env:"STRING" default:"nested-default"`
}

func defaults() testConfig {
	return testConfig{
		StringValue:   "default",
		IntValue:      42,
		BoolValue:     true,
		DurationValue: 2 * time.Second,
		ListValue:     []string{"user"},
		Nested:        testNestedConfig{NestedString: "nested-default"},
	}
}

//nolint:paralleltest
func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		envVars map[string]string
		want    func(*testConfig)
		wantErr bool
	}{
		{
			name:    "uses default values when env vars not set",
			envVars: map[string]string{},
		},
		{
			name: "reads environment variables",
			envVars: map[string]string{
				"STRING_VALUE":   "env-value",
				"INT_VALUE":      "123",
				"BOOL_VALUE":     "false",
				"DURATION_VALUE": "150ms",
				"LIST_VALUE":     "user, admin,,",
				"NESTED_STRING":  "env-nested",
			},
			want: func(c *testConfig) {
				c.StringValue = "env-value"
				c.IntValue = 123
				c.BoolValue = false
				c.DurationValue = 150 * time.Millisecond
				c.ListValue = []string{"user", "admin"}
				c.Nested.NestedString = "env-nested"
			},
		},
		{
			name:    "handles prefix correctly",
			prefix:  "APP",
			envVars: map[string]string{"APP_STRING_VALUE": "prefixed-value"},
			want:    func(c *testConfig) { c.StringValue = "prefixed-value" },
		},
		{
			name:    "falls back to unprefixed name",
			prefix:  "APP_SERVICE",
			envVars: map[string]string{"INT_VALUE": "7"},
			want:    func(c *testConfig) { c.IntValue = 7 },
		},
		{
			name:   "prefers more specific prefix",
			prefix: "APP_SERVICE",
			envVars: map[string]string{
				"APP_STRING_VALUE":         "less-specific",
				"APP_SERVICE_STRING_VALUE": "more-specific",
			},
			want: func(c *testConfig) { c.StringValue = "more-specific" },
		},
		{
			name:    "handles empty string values",
			envVars: map[string]string{"STRING_VALUE": ""},
			want:    func(c *testConfig) { c.StringValue = "" },
		},
		{
			name:    "fails on invalid int value",
			envVars: map[string]string{"INT_VALUE": "not-a-number"},
			wantErr: true,
		},
		{
			name:    "fails on invalid bool value",
			envVars: map[string]string{"BOOL_VALUE": "not-a-bool"},
			wantErr: true,
		},
		{
			name:    "fails on invalid duration value",
			envVars: map[string]string{"DURATION_VALUE": "soon"},
			wantErr: true,
		},
	}

	ctx := context.Background()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			want := defaults()
			if tt.want != nil {
				tt.want(&want)
			}

			cfg := &testConfig{}
			err := Parse(ctx, cfg, tt.prefix)

			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.wantErr {
				return
			}

			if cfg.StringValue != want.StringValue {
				t.Errorf("StringValue = %v, want %v", cfg.StringValue, want.StringValue)
			}
			if cfg.IntValue != want.IntValue {
				t.Errorf("IntValue = %v, want %v", cfg.IntValue, want.IntValue)
			}
			if cfg.BoolValue != want.BoolValue {
				t.Errorf("BoolValue = %v, want %v", cfg.BoolValue, want.BoolValue)
			}
			if cfg.DurationValue != want.DurationValue {
				t.Errorf("DurationValue = %v, want %v", cfg.DurationValue, want.DurationValue)
			}
			if !slices.Equal(cfg.ListValue, want.ListValue) {
				t.Errorf("ListValue = %v, want %v", cfg.ListValue, want.ListValue)
			}
			if cfg.NoEnvTag != "" {
				t.Errorf("NoEnvTag = %v, want empty", cfg.NoEnvTag)
			}
			if cfg.Nested.NestedString != want.Nested.NestedString {
				t.Errorf("NestedString = %v, want %v", cfg.Nested.NestedString, want.Nested.NestedString)
			}
			if cfg.Namespace() != tt.prefix {
				t.Errorf("Namespace() = %v, want %v", cfg.Namespace(), tt.prefix)
			}
		})
	}
}

//nolint:paralleltest
func TestParseMissingRequired(t *testing.T) {
	cfg := &struct {
		EnvConfig

		Secret string `env:"SHOPCART_TEST_REQUIRED_SECRET"`
	}{}

	err := Parse(context.Background(), cfg, "")
	if !errors.Is(err, ErrVarNotSet) {
		t.Errorf("expected %v, got %v", ErrVarNotSet, err)
	}
}

//nolint:paralleltest
func TestParseDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")

	if err := os.WriteFile(path, []byte("SHOPCART_TEST_DOTENV_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	orig := DotEnvFile
	DotEnvFile = path
	t.Cleanup(func() {
		DotEnvFile = orig
		_ = os.Unsetenv("SHOPCART_TEST_DOTENV_VALUE")
	})

	cfg := &struct {
		EnvConfig

		Value string `env:"SHOPCART_TEST_DOTENV_VALUE"`
	}{}

	if err := Parse(context.Background(), cfg, ""); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Value != "from-file" {
		t.Errorf("Value = %q, want %q", cfg.Value, "from-file")
	}
}

func TestParseInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     any
		wantErr error
	}{
		{
			name:    "non-pointer config",
			cfg:     testConfig{},
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "non-struct pointer",
			cfg:     new(string),
			wantErr: ErrInvalidConfig,
		},
		{
			name: "missing EnvConfig embedding",
			cfg: &struct {
				Value string `env:"VALUE"`
			}{},
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Parse(context.Background(), tt.cfg, "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}
