//go:build linux

package main

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = func() bool {
	_, err := unix.IoctlGetTermios(int(os.Stdin.Fd()), unix.TCGETS)
	return err == nil
}

// readRawLine reads one edited line from the terminal with canonical mode and
// echo switched off for the duration of the read.
func readRawLine(ed *lineEditor) (string, error) {
	fd := int(os.Stdin.Fd())
	oldState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	newState := *oldState
	newState.Lflag &^= unix.ICANON | unix.ECHO
	newState.Cc[unix.VMIN] = 1
	newState.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &newState); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, oldState)
	}()

	ed.begin()
	var buf [16]byte
	for {
		n, err := os.Stdin.Read(buf[:])
		if err != nil {
			return "", err
		}
		for _, b := range buf[:n] {
			switch ed.feed(b) {
			case editDone:
				return ed.text(), nil
			case editEOF:
				return "", io.EOF
			}
		}
	}
}
