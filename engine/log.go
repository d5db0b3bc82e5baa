package engine

import "github.com/sirupsen/logrus"

// fieldLogger returns a logrus.Entry pre-populated with the fields every
// log line from this engine instance should carry, the same
// with-fields-once-then-reuse pattern the teacher applies to its own
// request-scoped loggers.
func fieldLogger(log *logrus.Logger, engineID, kind string) *logrus.Entry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return log.WithFields(logrus.Fields{
		"engine_id":   engineID,
		"engine_kind": kind,
	})
}
