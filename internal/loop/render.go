package loop

import "go.uber.org/zap"

// Renderer displays the status.
type Renderer interface {
	Render(s Status)
}

// LogRenderer writes a log line whenever who is checked in changes. The
// countdown alone does not produce a line.
type LogRenderer struct {
	log      *zap.Logger
	rendered bool
	active   bool
	identity string
}

// NewLogRenderer creates a renderer writing to logger.
func NewLogRenderer(logger *zap.Logger) *LogRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogRenderer{log: logger}
}

func (r *LogRenderer) Render(s Status) {
	if r.rendered && s.Active == r.active && s.Identity == r.identity {
		return
	}
	r.rendered = true
	r.active = s.Active
	r.identity = s.Identity
	r.log.Info(s.Text(), zap.Bool("active", s.Active), zap.String("identity", s.Identity))
}
