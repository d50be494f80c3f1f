package zonechat

import "go.uber.org/zap"

// NoticeLevel is the severity of a user-visible notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarn
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeWarn:
		return "warn"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a transient message for the user, like a toast.
type Notice struct {
	Level NoticeLevel
	Text  string
}

// Notices returns the notice stream. Notices are dropped when the reader
// falls behind.
func (c *Controller) Notices() <-chan Notice {
	return c.notices
}

func (c *Controller) notify(level NoticeLevel, text string) {
	select {
	case c.notices <- Notice{Level: level, Text: text}:
	default:
		c.logger.Debug("notice dropped", zap.String("text", text))
	}
}
