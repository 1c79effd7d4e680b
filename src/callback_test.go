package flow

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"ringflow/logutil"
)

func TestLogProgressWritesEpochLines(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cb := LogProgress(LogProgressConfig{Logger: logger, Every: 2})

	logs := map[string]float64{"loss": 1.5, "lr": 0.001}
	cb.onTrainBegin(logs)
	cb.onBatchEnd(0, logs)
	assert.False(t, cb.onEpochEnd(0, logs))
	assert.False(t, cb.onEpochEnd(1, logs))
	cb.onTrainEnd(logs)

	out := buf.String()
	assert.Contains(t, out, "training started")
	assert.NotContains(t, out, "epoch=1 ")
	assert.Contains(t, out, "epoch=2 loss=1.5 lr=0.001")
	assert.Contains(t, out, "training complete")
	// batch lines are trace level
	assert.NotContains(t, out, "msg=batch")
}

func TestLogProgressTracesBatches(t *testing.T) {
	var buf bytes.Buffer
	cb := LogProgress(LogProgressConfig{Logger: logutil.NewLogger(&buf, logutil.LevelTrace), Every: 1})

	cb.onBatchEnd(3, map[string]float64{"batch_loss": 0.25})

	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, "source=callback.go:")
	assert.Contains(t, out, "msg=batch batch=3 loss=0.25")
}

func TestEarlyStopping(t *testing.T) {
	cb := EarlyStopping(EarlyStoppingConfig{Monitor: "loss", Patience: 2})
	logs := map[string]float64{}
	cb.onTrainBegin(logs)

	var stops []bool
	for _, v := range []float64{3, 2, 2.5, 2.6} {
		logs["loss"] = v
		stops = append(stops, cb.onEpochEnd(0, logs))
	}
	assert.Equal(t, []bool{false, false, false, true}, stops)
}

func TestHistoryCallback(t *testing.T) {
	h := History()
	h.onTrainBegin(nil)
	h.onEpochEnd(0, map[string]float64{"loss": 2})
	h.onEpochEnd(1, map[string]float64{"loss": 1})
	assert.Equal(t, []float64{2, 1}, h.History["loss"])
}
