// Copyright 2019 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package log wraps logrus for this system's components (document apply,
// sync transport, CLI). Every caller here gets its own scoped *log.Entry
// via NewLogger().WithField(...) rather than reaching for a shared global
// logger, so a sync session's log lines and a document's log lines never
// get confused for each other.
package log

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// Fields aliases logrus.Fields
type Fields = logrus.Fields

// Entry aliases logrus.Entry
type Entry = logrus.Entry

// Logger is the interface for loggers used by doc.Document, sync.Session
// and the cmd package. There is no Fatal/Panic surface: every caller in
// this system reports failure through an error return, never by aborting
// the process from inside a log call.
type Logger interface {
	Debug(...interface{})
	Debugf(string, ...interface{})

	Info(...interface{})
	Infof(string, ...interface{})

	Warn(...interface{})
	Warnf(string, ...interface{})

	Error(...interface{})
	Errorf(string, ...interface{})

	WithField(key string, value interface{}) *Entry
	WithFields(Fields) *Entry

	SetLevel(string) error
	SetOutput(io.Writer)
	SetJSONFormatter()

	WithContext(context.Context) Logger
}

type logger struct {
	entry *logrus.Entry
}

// NewLogger creates a new logger backed by its own logrus.Logger, so two
// components that each call NewLogger never share level/output state.
func NewLogger() Logger {
	l := logrus.New()
	return logger{entry: logrus.NewEntry(l)}
}

// WithContext adds a context to the Entry.
func (l logger) WithContext(ctx context.Context) Logger {
	return logger{l.entry.WithContext(ctx)}
}

// Debug logs a message at level Debug on the logger.
func (l logger) Debug(args ...interface{}) {
	l.entry.Debug(args...)
}

// Debugf logs a message at level Debug on the logger.
func (l logger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Info logs a message at level Info on the logger.
func (l logger) Info(args ...interface{}) {
	l.entry.Info(args...)
}

// Infof logs a message at level Info on the logger.
func (l logger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs a message at level Warn on the logger.
func (l logger) Warn(args ...interface{}) {
	l.entry.Warn(args...)
}

// Warnf logs a message at level Warn on the logger.
func (l logger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs a message at level Error on the logger.
func (l logger) Error(args ...interface{}) {
	l.entry.Error(args...)
}

// Errorf logs a message at level Error on the logger.
func (l logger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// WithField adds a field to the logger.
func (l logger) WithField(key string, value interface{}) *Entry {
	return l.entry.WithField(key, value)
}

// WithFields adds a map of fields to the logger.
func (l logger) WithFields(fields Fields) *Entry {
	return l.entry.WithFields(fields)
}

// SetLevel sets the logger level.
func (l logger) SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.entry.Logger.SetLevel(lvl)
	return nil
}

// SetOutput sets the logger output.
func (l logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

// SetJSONFormatter sets the logger formatter to JSONFormatter.
func (l logger) SetJSONFormatter() {
	l.entry.Logger.SetFormatter(&logrus.JSONFormatter{})
}
