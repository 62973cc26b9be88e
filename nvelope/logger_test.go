package nvelope_test

import (
	"bytes"
	"log"
	"testing"

	"github.com/muir/nrpc/nvelope"
	"github.com/stretchr/testify/assert"
)

func TestLoggerFromStd(t *testing.T) {
	var buf bytes.Buffer
	logger := nvelope.LoggerFromStd(log.New(&buf, "", 0))()
	logger = nvelope.WithFields(logger, map[string]interface{}{"request": "r1"})
	logger.Error("boom", map[string]interface{}{"b": 2, "a": 1})
	logger.Warn("careful")
	logger.Debug("detail")
	assert.Equal(t, "ERROR boom request=r1 a=1 b=2\nWARN careful request=r1\nDEBUG detail request=r1\n", buf.String())
}

func TestNoLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		nvelope.NoLogger().Error("nothing", map[string]interface{}{"x": 1})
	})
}
