//go:build !linux

package main

import "errors"

// Line editing needs termios; elsewhere input is always read line-buffered.
var stdinIsTTY = func() bool { return false }

func readRawLine(*lineEditor) (string, error) {
	return "", errors.New("raw terminal input is only supported on linux")
}
