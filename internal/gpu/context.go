package gpu

import "go.uber.org/zap"

// Context is the explicit rendering/compute state handed to every meshing and
// draw call, in place of process-wide bound-device or bound-program state.
type Context struct {
	Device *Device
	Log    *zap.Logger
	// Frame increments once per terrain tick; renderers may use it to batch uploads.
	Frame uint64
}

// NewContext wraps a device. A nil logger is replaced by a no-op logger.
func NewContext(dev *Device, log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	return &Context{Device: dev, Log: log}
}

// Logger never returns nil.
func (c *Context) Logger() *zap.Logger {
	if c == nil || c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}
