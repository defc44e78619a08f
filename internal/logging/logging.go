package logging

import (
	"fmt"
	"io"
	"strings"

	"code.cloudfoundry.org/lager/v3"
)

// ParseLevel accepts debug, info, error and fatal.
func ParseLevel(s string) (lager.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return lager.DEBUG, nil
	case "", "info":
		return lager.INFO, nil
	case "error":
		return lager.ERROR, nil
	case "fatal":
		return lager.FATAL, nil
	default:
		return lager.INFO, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns a logger writing JSON lines to w at the given minimum level.
// The returned sink can change the level at runtime.
func New(component, level string, w io.Writer) (lager.Logger, *lager.ReconfigurableSink, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	logger := lager.NewLogger(component)
	sink := lager.NewReconfigurableSink(lager.NewWriterSink(w, lager.DEBUG), lvl)
	logger.RegisterSink(sink)
	return logger, sink, nil
}
