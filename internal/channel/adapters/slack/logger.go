package slack

import (
	"log/slog"
	"strings"
)

// slogOutput adapts slog.Logger to the slack client logger so library logs go through slog.
type slogOutput struct {
	log *slog.Logger
}

func (s *slogOutput) Output(_ int, msg string) error {
	s.log.Debug(strings.TrimRight(msg, "\n"))
	return nil
}
