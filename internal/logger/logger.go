// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package logger provides a global singleton logger instance that is safe for concurrent use by multiple goroutines.
// It offers a method to retrieve the logger instance and another to set a new logger instance in a thread-safe manner.
package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Component and Version identify this binary in every log entry's
// structured fields. Nothing in this repository changes them from
// these defaults.
var (
	Component = "zincati"
	Version   = "dev"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)
}

var (
	loggerInstance *logrus.Entry
	mu             sync.Mutex
)

// Logger provides a global singleton logger instance.
func Logger() *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()
	if loggerInstance == nil {
		loggerInstance = logrus.WithFields(logrus.Fields{
			"component": Component,
			"version":   Version,
		})
	}
	return loggerInstance
}

// SetLogger sets a new logger instance in a thread-safe manner.
func SetLogger(newLogger *logrus.Entry) {
	mu.Lock()
	defer mu.Unlock()
	loggerInstance = newLogger
}
