/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package log

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

type LogLevel int32

const (
	LogPrefix     = "[go-nsp] "
	ErrorPrefix   = "[error] "
	WarningPrefix = "[warn] "
	InfoPrefix    = "[info] "
	DebugPrefix   = "[debug] "
	HelpLevels    = "Must be one of: error, warning, info, debug."
)

const (
	ErrorLevel LogLevel = iota
	WarningLevel
	InfoLevel
	DebugLevel
)

var levelMapping = map[string]LogLevel{
	"error":   ErrorLevel,
	"warning": WarningLevel,
	"info":    InfoLevel,
	"debug":   DebugLevel,
}

// Logger writes levelled messages. The level is shared by all component
// loggers so that --log-level applies everywhere at once.
type Logger struct {
	component string
	*log.Logger
}

var (
	level  = int32(InfoLevel)
	std    = log.New(os.Stderr, LogPrefix, log.LstdFlags|log.Lmicroseconds)
	logger = &Logger{Logger: std}
)

func ParseLevel(strLevel string) (LogLevel, error) {
	l, ok := levelMapping[strLevel]
	if !ok {
		return ErrorLevel, errors.New("Wrong log level. " + HelpLevels)
	}
	return l, nil
}

func SetLevel(strLevel string) error {
	l, err := ParseLevel(strLevel)
	if err != nil {
		return err
	}
	atomic.StoreInt32(&level, int32(l))
	return nil
}

func Level() LogLevel {
	return LogLevel(atomic.LoadInt32(&level))
}

func Init(out io.Writer, strLevel string) error {
	std.SetOutput(out)
	return SetLevel(strLevel)
}

// For returns a logger that tags every message with the component name.
func For(component string) *Logger {
	return &Logger{component: component, Logger: std}
}

func (l *Logger) output(lvl LogLevel, prefix, format string, v ...interface{}) {
	if Level() < lvl {
		return
	}
	msg := fmt.Sprintf(format, v...)
	if l.component != "" {
		msg = fmt.Sprintf("%s(%s) %s", prefix, l.component, msg)
	} else {
		msg = prefix + msg
	}
	l.Logger.Output(3, msg)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.output(ErrorLevel, ErrorPrefix, format, v...)
}

func (l *Logger) Warning(format string, v ...interface{}) {
	l.output(WarningLevel, WarningPrefix, format, v...)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.output(InfoLevel, InfoPrefix, format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.output(DebugLevel, DebugPrefix, format, v...)
}

// Println logs at error level. It makes Logger usable as the panic logger
// of gorilla/handlers.
func (l *Logger) Println(v ...interface{}) {
	l.output(ErrorLevel, ErrorPrefix, "%s", strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func Error(format string, v ...interface{}) {
	logger.output(ErrorLevel, ErrorPrefix, format, v...)
}

func Warning(format string, v ...interface{}) {
	logger.output(WarningLevel, WarningPrefix, format, v...)
}

func Info(format string, v ...interface{}) {
	logger.output(InfoLevel, InfoPrefix, format, v...)
}

func Debug(format string, v ...interface{}) {
	logger.output(DebugLevel, DebugPrefix, format, v...)
}

type levelWriter struct {
	l   *Logger
	lvl LogLevel
}

func (w levelWriter) Write(p []byte) (int, error) {
	prefixes := map[LogLevel]string{
		ErrorLevel:   ErrorPrefix,
		WarningLevel: WarningPrefix,
		InfoLevel:    InfoPrefix,
		DebugLevel:   DebugPrefix,
	}
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.l.output(w.lvl, prefixes[w.lvl], "%s", msg)
	return len(p), nil
}

// Writer returns an io.Writer logging every write as one message of the
// given level. Used for access logs of the HTTP API.
func (l *Logger) Writer(lvl LogLevel) io.Writer {
	return levelWriter{l: l, lvl: lvl}
}
