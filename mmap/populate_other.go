//go:build unix && !linux

package mmap

const populateFlag = 0
