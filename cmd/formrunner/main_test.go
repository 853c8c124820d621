// File: cmd/formrunner/main_test.go
package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestHandlePanic(t *testing.T) {
	t.Cleanup(resetMocks)

	t.Run("WritesPanicLog", func(t *testing.T) {
		var (
			name     string
			written  []byte
			exitCode int
		)
		osWriteFile = func(n string, data []byte, _ os.FileMode) error {
			name, written = n, data
			return nil
		}
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()

		assert.Equal(t, panicLogFile, name)
		assert.Contains(t, string(written), "panic: boom")
		assert.Equal(t, 2, exitCode)
	})

	t.Run("WriteFailure", func(t *testing.T) {
		exitCode := 0
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only filesystem") }
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()
		assert.Equal(t, 2, exitCode)
	})

	t.Run("NoPanic", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		assert.False(t, called)
	})
}
