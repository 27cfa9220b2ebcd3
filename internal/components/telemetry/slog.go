package telemetry

import (
	"log/slog"
	"os"
	"strconv"
)

// SlogAPI implements API on top of the default slog logger.
type SlogAPI struct{}

// slogArgs flattens params into "param<n>" attributes, errors become their
// message.
func slogArgs(id string, params []any) []any {
	args := make([]any, 0, 2+2*len(params))
	if id != "" {
		args = append(args, "id", id)
	}
	for i, p := range params {
		if err, ok := p.(error); ok {
			p = err.Error()
		}
		args = append(args, "param"+strconv.Itoa(i), p)
	}
	return args
}

func (SlogAPI) ReportBroken(id string, params ...any) {
	slog.Error("component broken", slogArgs(id, params)...)
}

func (SlogAPI) ReportWarning(id string, params ...any) {
	slog.Warn("component warning", slogArgs(id, params)...)
}

func (SlogAPI) ReportDebug(msg string, params ...any) {
	slog.Debug(msg, slogArgs("", params)...)
}

func (SlogAPI) ReportCount(id string, count int64) {
	slog.Info("count", "id", id, "count", count)
}

// InitSlog makes a stderr text handler the default logger, debug reports
// only show when verbose.
func InitSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
