package flow

import (
	"context"
	"log/slog"
	"sort"

	"ringflow/logutil"
)

// Callback is called during training at various points
type Callback interface {
	onTrainBegin(logs map[string]float64)
	onTrainEnd(logs map[string]float64)
	onEpochBegin(epoch int, logs map[string]float64)
	onEpochEnd(epoch int, logs map[string]float64) bool // return true to stop training
	onBatchEnd(batch int, logs map[string]float64)
	name() string
}

// LogProgressCallback logs one structured line per epoch
type LogProgressCallback struct {
	Logger *slog.Logger
	Every  int
}

type LogProgressConfig struct {
	Logger *slog.Logger // nil uses slog.Default()
	Every  int          // log every N epochs, <= 0 means every epoch
}

func LogProgress(config LogProgressConfig) Callback {
	return &LogProgressCallback{Logger: config.Logger, Every: config.Every}
}

func (p *LogProgressCallback) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *LogProgressCallback) onTrainBegin(logs map[string]float64) {
	p.logger().Info("training started")
}

func (p *LogProgressCallback) onTrainEnd(logs map[string]float64) {
	p.logger().Info("training complete", logAttrs(logs)...)
}

func (p *LogProgressCallback) onEpochBegin(epoch int, logs map[string]float64) {}

func (p *LogProgressCallback) onEpochEnd(epoch int, logs map[string]float64) bool {
	every := max(p.Every, 1)
	if (epoch+1)%every == 0 {
		args := append([]any{"epoch", epoch + 1}, logAttrs(logs)...)
		p.logger().Info("epoch", args...)
	}
	return false
}

func (p *LogProgressCallback) onBatchEnd(batch int, logs map[string]float64) {
	logutil.TraceContext(context.Background(), p.logger(), "batch", "batch", batch, "loss", logs["batch_loss"])
}

func (p *LogProgressCallback) name() string { return "log_progress" }

// logAttrs renders logs as sorted key/value pairs.
func logAttrs(logs map[string]float64) []any {
	keys := make([]string, 0, len(logs))
	for k := range logs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, logs[k])
	}
	return args
}

// HistoryCallback records training history
type HistoryCallback struct {
	History map[string][]float64
}

func History() *HistoryCallback {
	return &HistoryCallback{
		History: make(map[string][]float64),
	}
}

func (h *HistoryCallback) onTrainBegin(logs map[string]float64) {
	h.History = make(map[string][]float64)
}

func (h *HistoryCallback) onTrainEnd(logs map[string]float64) {}

func (h *HistoryCallback) onEpochBegin(epoch int, logs map[string]float64) {}

func (h *HistoryCallback) onEpochEnd(epoch int, logs map[string]float64) bool {
	for k, v := range logs {
		h.History[k] = append(h.History[k], v)
	}
	return false
}

func (h *HistoryCallback) onBatchEnd(batch int, logs map[string]float64) {}

func (h *HistoryCallback) name() string { return "history" }

// EarlyStoppingCallback stops training when a metric stops improving
type EarlyStoppingCallback struct {
	Monitor   string
	MinDelta  float64
	Patience  int
	bestValue float64
	seen      bool
	wait      int
}

type EarlyStoppingConfig struct {
	Monitor  string // lower is better
	MinDelta float64
	Patience int
}

func EarlyStopping(config EarlyStoppingConfig) Callback {
	return &EarlyStoppingCallback{
		Monitor:  config.Monitor,
		MinDelta: config.MinDelta,
		Patience: config.Patience,
	}
}

func (e *EarlyStoppingCallback) onTrainBegin(logs map[string]float64) {
	e.seen = false
	e.wait = 0
}

func (e *EarlyStoppingCallback) onTrainEnd(logs map[string]float64) {}

func (e *EarlyStoppingCallback) onEpochBegin(epoch int, logs map[string]float64) {}

func (e *EarlyStoppingCallback) onEpochEnd(epoch int, logs map[string]float64) bool {
	v, ok := logs[e.Monitor]
	if !ok {
		return false
	}
	if !e.seen || v < e.bestValue-e.MinDelta {
		e.bestValue = v
		e.seen = true
		e.wait = 0
		return false
	}
	e.wait++
	return e.wait >= e.Patience
}

func (e *EarlyStoppingCallback) onBatchEnd(batch int, logs map[string]float64) {}

func (e *EarlyStoppingCallback) name() string { return "early_stopping" }
