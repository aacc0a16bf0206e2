/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/suite"
)

type LoggerTestSuite struct {
	suite.Suite
	prev int
}

func (s *LoggerTestSuite) SetupTest() {
	s.prev = LogLevel()
}

func (s *LoggerTestSuite) TearDownTest() {
	SetLogLevel(s.prev)
}

func (s *LoggerTestSuite) TestLogColor() {
	SetLogLevel(LevelTrace)
	var buf bytes.Buffer
	l := New("test", &buf)

	l.Tracef("this is tracef %s", "hello world")
	l.Debugf("this is debugf %s", "hello world")
	l.Infof("this is infof %s", "hello world")
	l.Warnf("this is warnf %s", "hello world")
	l.Errorf("this is errorf %s", "hello world")

	out := buf.String()
	s.Contains(out, "TRACE")
	s.Contains(out, "this is tracef hello world")
	s.Contains(out, "this is errorf hello world")
	s.Contains(out, "test")
	s.Contains(out, "logger_test.go")
}

func (s *LoggerTestSuite) TestLevelFilters() {
	SetLogLevel(LevelWarn)
	s.Equal(LevelWarn, LogLevel())
	var buf bytes.Buffer
	l := New("", &buf)
	l.Infof("hidden")
	l.Warnf("shown")
	s.NotContains(buf.String(), "hidden")
	s.Contains(buf.String(), "shown")

	SetLogLevel(LevelNoPrint)
	s.Equal(LevelNoPrint, LogLevel())
	buf.Reset()
	l.Errorf("silenced")
	s.Empty(buf.String())
}

func (s *LoggerTestSuite) TestInvalidLevelIgnored() {
	SetLogLevel(LevelDebug)
	SetLogLevel(42)
	SetLogLevel(-1)
	s.Equal(LevelDebug, LogLevel())
}

func (s *LoggerTestSuite) TestNamed() {
	SetLogLevel(LevelInfo)
	var buf bytes.Buffer
	l := New("arbiter", &buf).Named("registry")
	s.Equal("arbiter.registry", l.name)
	l.Infof("hello")
	s.Contains(buf.String(), "arbiter.registry")
}

func TestLoggerTestSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}
