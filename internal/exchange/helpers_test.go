package exchange

import (
	"testing"
	"time"

	"dodo/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var testSettings = config.SettingsConfig{Timeout: 5 * time.Second}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	return decimal.RequireFromString(s)
}
