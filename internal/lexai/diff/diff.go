// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package diff computes a line-level unified diff of two contract
// bodies. The output is consumed by the model explanation prompt, so it
// favours readability over patch-tool compatibility: full bodies, no
// hunk headers.
package diff

import "strings"

// Unified renders the line diff of a against b. Labels name the two
// sides in the header, e.g. "version 1" / "version 2".
func Unified(labelA, a, labelB, b string) string {
	linesA := splitLines(a)
	linesB := splitLines(b)

	var sb strings.Builder
	sb.WriteString("--- " + labelA + "\n")
	sb.WriteString("+++ " + labelB + "\n")
	for _, op := range operations(linesA, linesB) {
		sb.WriteString(op)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Changed reports whether the two bodies differ at the line level.
func Changed(a, b string) bool { return a != b }

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// operations walks the longest-common-subsequence table back to front,
// emitting context, deletion, and addition lines.
func operations(a, b []string) []string {
	// lcs[i][j] = LCS length of a[i:], b[j:].
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var out []string
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, "  "+a[i])
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			out = append(out, "- "+a[i])
			i++
		default:
			out = append(out, "+ "+b[j])
			j++
		}
	}
	for ; i < len(a); i++ {
		out = append(out, "- "+a[i])
	}
	for ; j < len(b); j++ {
		out = append(out, "+ "+b[j])
	}
	return out
}
