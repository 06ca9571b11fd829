package envconfig

import (
	"log/slog"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarTrimsWhitespaceAndQuotes(t *testing.T) {
	t.Setenv("GGUFLM_TEST_VAR", `  "quoted value"  `)
	require.Equal(t, "quoted value", Var("GGUFLM_TEST_VAR"))
}

func TestContextLengthDefaultAndOverride(t *testing.T) {
	t.Setenv("GGUFLM_CONTEXT_LENGTH", "")
	require.Equal(t, 4096, ContextLength())

	t.Setenv("GGUFLM_CONTEXT_LENGTH", "8192")
	require.Equal(t, 8192, ContextLength())

	t.Setenv("GGUFLM_CONTEXT_LENGTH", "not-a-number")
	require.Equal(t, 4096, ContextLength())
}

func TestWorkersDefaultsToGOMAXPROCS(t *testing.T) {
	t.Setenv("GGUFLM_WORKERS", "")
	require.Equal(t, runtime.GOMAXPROCS(0), Workers())

	t.Setenv("GGUFLM_WORKERS", "3")
	require.Equal(t, 3, Workers())
}

func TestLogLevelParsing(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"huh":   slog.LevelInfo,
	}
	for in, want := range cases {
		t.Setenv("GGUFLM_LOG_LEVEL", in)
		require.Equal(t, want, LogLevel(), "input=%q", in)
	}
}

func TestMaxArraySizeAllowsNegativeToDisableBound(t *testing.T) {
	t.Setenv("GGUFLM_MAX_ARRAY_SIZE", "-1")
	require.Equal(t, -1, MaxArraySize())

	t.Setenv("GGUFLM_MAX_ARRAY_SIZE", "")
	require.Equal(t, 1024, MaxArraySize())
}
