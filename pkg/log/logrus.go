// Copyright 2023 The rvisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// LogrusEmitter forwards log statements to a logrus logger, for
// deployments that want structured records instead of the glog text
// format.
type LogrusEmitter struct {
	Logger *logrus.Logger
}

// NewLogrusEmitter returns an emitter writing JSON records to w. Level
// filtering stays with this package, so the logrus side is wide open.
func NewLogrusEmitter(w io.Writer) LogrusEmitter {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.TraceLevel)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	return LogrusEmitter{Logger: l}
}

// Emit implements Emitter.Emit.
func (e LogrusEmitter) Emit(level Level, timestamp time.Time, format string, v ...any) {
	entry := e.Logger.WithTime(timestamp)
	switch level {
	case Warning:
		entry.Warningf(format, v...)
	case Info:
		entry.Infof(format, v...)
	default:
		entry.Debugf(format, v...)
	}
}
