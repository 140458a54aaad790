package benchparse

// Package benchparse extracts numeric metrics from captured benchmark
// output. It is a pure parser over text and knows nothing about the
// meaning of the metrics.
//
// Three line shapes are recognized:
//
//	BLAKE2-256: 1523.50 MiB/s
//	| CPU | BLAKE2-256 | 1523.50 MiBs | 1000.00 MiBs |
//	Average: 52124
//
// Throughput values are normalized to MiB/s; bare numbers are taken as-is.

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// metricLineRe matches "<name>: <value> [unit]" where the value is the
// whole remainder of the line. Names must not contain spaces or colons so
// free-form log lines do not match.
var metricLineRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_.-]*):\s+([+-]?\d+(?:\.\d+)?)\s*([A-Za-z/%]+)?\s*$`)

var numberRe = regexp.MustCompile(`[+-]?\d+(?:\.\d+)?`)

// Parse scans benchmark output and returns metric name to normalized
// value. A later occurrence of a metric overwrites an earlier one. An
// output with no recognizable metric lines yields an empty map; whether
// that is a failure is decided by the caller against the suite's required
// metrics.
func Parse(r io.Reader) (map[string]float64, error) {
	metrics := map[string]float64{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "|") {
			if name, value, ok := parseTableRow(line); ok {
				metrics[name] = value
			}
			continue
		}

		if m := metricLineRe.FindStringSubmatch(line); m != nil {
			value, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			metrics[m[1]] = normalizeThroughput(value, m[3])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading benchmark output: %w", err)
	}
	return metrics, nil
}

// parseTableRow handles the machine-benchmark ASCII score table. Rows look
// like "| Category | Function | Score | Minimum expected |"; the function
// column names the metric and the score column carries "<number> <unit>".
func parseTableRow(line string) (string, float64, bool) {
	if strings.Contains(line, "-+-") || strings.Contains(line, "===") {
		return "", 0, false
	}

	raw := strings.Split(line, "|")
	if len(raw) < 4 {
		return "", 0, false
	}
	// Drop the empty cells outside the leading and trailing pipes.
	cells := make([]string, 0, len(raw)-2)
	for _, c := range raw[1 : len(raw)-1] {
		cells = append(cells, strings.TrimSpace(c))
	}
	if len(cells) < 3 {
		return "", 0, false
	}

	name := cells[1]
	score := cells[2]
	num := numberRe.FindString(score)
	if name == "" || num == "" {
		return "", 0, false
	}
	value, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return "", 0, false
	}
	return name, normalizeThroughput(value, score), true
}

// normalizeThroughput converts KiB/GiB throughput to MiB. The decimal
// factor matches the scores the machine benchmark prints, which use 1000
// between units. Unknown units pass the value through untouched.
func normalizeThroughput(value float64, unit string) float64 {
	switch {
	case strings.Contains(unit, "KiB"):
		return value / 1000
	case strings.Contains(unit, "GiB"):
		return value * 1000
	default:
		return value
	}
}
