package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Write action statuses
const (
	StatusSubmitted = "submitted"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)

// Entry is one line of the write journal
type Entry struct {
	Op       string // fund, withdraw
	Account  string
	Contract string
	ChainID  uint64
	ValueWei string
	TxHash   string
	Status   string
	Kind     string // error kind for failed and rejected writes
	Error    string
	Block    uint64
	GasUsed  uint64
	Duration time.Duration
}

// Journal appends write actions as JSON lines
type Journal struct {
	logger *zap.Logger
	file   *os.File
}

// Open creates the journal file's directory if needed and appends to it
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %v", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %v", err)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(file), zap.InfoLevel)
	j := New(core)
	j.file = file
	return j, nil
}

// New creates a journal writing to an existing core
func New(core zapcore.Core) *Journal {
	return &Journal{logger: zap.New(core)}
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "event"
	cfg.LevelKey = "log_level"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeDuration = zapcore.MillisDurationEncoder
	return cfg
}

// Record writes the entry and returns its id. A nil journal records nothing.
func (j *Journal) Record(e Entry) string {
	if j == nil {
		return ""
	}

	id := uuid.NewString()
	fields := []zap.Field{
		zap.String("entry_id", id),
		zap.String("operation", e.Op),
		zap.String("status", e.Status),
		zap.String("account", e.Account),
		zap.String("contract", e.Contract),
		zap.Uint64("chain_id", e.ChainID),
	}
	if e.ValueWei != "" {
		fields = append(fields, zap.String("value_wei", e.ValueWei))
	}
	if e.TxHash != "" {
		fields = append(fields, zap.String("tx_hash", e.TxHash))
	}
	if e.Block != 0 {
		fields = append(fields, zap.Uint64("block_number", e.Block), zap.Uint64("gas_used", e.GasUsed))
	}
	if e.Duration != 0 {
		fields = append(fields, zap.Duration("processing_time", e.Duration))
	}
	if e.Kind != "" {
		fields = append(fields, zap.String("error_kind", e.Kind))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error_message", e.Error))
	}

	switch e.Status {
	case StatusFailed:
		j.logger.Warn("write_action", fields...)
	default:
		j.logger.Info("write_action", fields...)
	}
	return id
}

// Close flushes and closes the journal
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	_ = j.logger.Sync()
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}
