// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package main

import "testing"

func TestRunExitCodes(t *testing.T) {
	if code := run([]string{"completion", "powershell"}); code != 1 {
		t.Errorf("unsupported shell: expected exit code 1, got %d", code)
	}

	t.Setenv("CINCH_POLL_INTERVAL", "not-a-duration")
	if code := run([]string{"info"}); code != 1 {
		t.Errorf("invalid environment: expected exit code 1, got %d", code)
	}
}
