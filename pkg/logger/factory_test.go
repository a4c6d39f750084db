package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json output with static attrs", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer

		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithFormat(logger.FormatJSON),
			logger.WithAttr(slog.String("service", "pushkit")),
		)
		log.Info("delivery sent", logger.DeliveryID("dlv-1"))

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "delivery sent", record["msg"])
		assert.Equal(t, "pushkit", record["service"])
		assert.Equal(t, "dlv-1", record["delivery_id"])
	})

	t.Run("text output", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer

		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithFormat(logger.FormatText),
		)
		log.Info("hello")

		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("level filtering", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer

		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithLevel(slog.LevelWarn),
		)
		log.Info("quiet")
		log.Warn("loud")

		out := buf.String()
		assert.NotContains(t, out, "quiet")
		assert.Contains(t, out, "loud")
	})

	t.Run("development preset", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer

		log := logger.New(
			logger.WithDevelopment("pushkit"),
			logger.WithOutput(&buf),
		)
		log.Debug("debugging")

		out := buf.String()
		assert.Contains(t, out, "debugging", "development preset logs at debug level")
		assert.Contains(t, out, "service=pushkit")
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() {
			logger.New(logger.WithFormat(logger.Format("xml")))
		})
	})
}

func TestAttrHelpers(t *testing.T) {
	t.Parallel()

	t.Run("error attr", func(t *testing.T) {
		t.Parallel()

		attr := logger.Error(errors.New("boom"))
		assert.Equal(t, "error", attr.Key)

		assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	})

	t.Run("identifier attrs", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer

		log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatJSON))
		log.Info("push send failed",
			logger.UserID("user-1"),
			logger.NotificationID("notif-1"),
			logger.SubscriptionID("sub-1"),
			logger.StatusCode(502),
		)

		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &record))
		assert.Equal(t, "user-1", record["user_id"])
		assert.Equal(t, "notif-1", record["notification_id"])
		assert.Equal(t, "sub-1", record["subscription_id"])
		assert.Equal(t, float64(502), record["status_code"])
	})
}
