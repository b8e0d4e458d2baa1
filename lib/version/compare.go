// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Compare returns -1, 0 or +1 as a is older than, equal to, or newer
// than b. Missing trailing components count as zero, so "2.5" equals
// "2.5.0.0". Anything after a '-' or '+' is ignored: "0.1.0-dev"
// compares as "0.1.0".
func Compare(a, b string) (int, error) {
	left, err := parse(a)
	if err != nil {
		return 0, err
	}
	right, err := parse(b)
	if err != nil {
		return 0, err
	}

	for i := range max(len(left), len(right)) {
		var l, r int
		if i < len(left) {
			l = left[i]
		}
		if i < len(right) {
			r = right[i]
		}
		switch {
		case l < r:
			return -1, nil
		case l > r:
			return 1, nil
		}
	}
	return 0, nil
}

// Newer reports whether latest is a later release than running.
func Newer(running, latest string) (bool, error) {
	order, err := Compare(latest, running)
	if err != nil {
		return false, err
	}
	return order > 0, nil
}

func parse(raw string) ([]int, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if index := strings.IndexAny(trimmed, "-+"); index >= 0 {
		trimmed = trimmed[:index]
	}
	if trimmed == "" {
		return nil, fmt.Errorf("invalid version %q", raw)
	}

	fields := strings.Split(trimmed, ".")
	components := make([]int, len(fields))
	for i, field := range fields {
		value, err := strconv.Atoi(field)
		if err != nil || value < 0 {
			return nil, fmt.Errorf("invalid version %q: component %q is not a number", raw, field)
		}
		components[i] = value
	}
	return components, nil
}
