package metrics

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// RenderError reports a family that cannot be written in the text exposition format.
type RenderError struct {
	Family string
	Reason string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("cannot render metric family %s: %s", e.Family, e.Reason)
}

// FormatPrometheus converts structured metrics data to Prometheus text format
func FormatPrometheus(data *MetricsData) (string, error) {
	var buf bytes.Buffer
	if err := WritePrometheus(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WritePrometheus writes data in the text exposition format (version 0.0.4).
// Labels are written in descriptor order so every point of a family carries the same label set.
func WritePrometheus(w io.Writer, data *MetricsData) error {
	if data == nil {
		return nil
	}

	var output strings.Builder
	for _, family := range data.Families {
		if family.Type != CounterType && family.Type != GaugeType {
			return &RenderError{Family: family.Name, Reason: fmt.Sprintf("unknown type %q", family.Type)}
		}

		output.WriteString("# HELP ")
		output.WriteString(family.Name)
		output.WriteByte(' ')
		output.WriteString(escapeHelp(family.Help))
		output.WriteByte('\n')

		output.WriteString("# TYPE ")
		output.WriteString(family.Name)
		output.WriteByte(' ')
		output.WriteString(string(family.Type))
		output.WriteByte('\n')

		for _, metric := range family.Metrics {
			labels, err := formatLabels(family.LabelNames, metric.Labels)
			if err != nil {
				return &RenderError{Family: family.Name, Reason: err.Error()}
			}
			output.WriteString(family.Name)
			output.WriteString(labels)
			output.WriteByte(' ')
			output.WriteString(formatValue(metric.Value))
			output.WriteByte('\n')
		}
	}

	_, err := io.WriteString(w, output.String())
	return err
}

// formatLabels renders {k="v",...} in the given name order.
// Returns an empty string for families without labels.
func formatLabels(names []string, labels map[string]string) (string, error) {
	if len(names) != len(labels) {
		return "", fmt.Errorf("point has %d labels, family declares %d", len(labels), len(names))
	}
	if len(names) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(names))
	for _, k := range names {
		v, ok := labels[k]
		if !ok {
			return "", fmt.Errorf("point is missing label %q", k)
		}
		parts = append(parts, k+`="`+escapeLabelValue(v)+`"`)
	}

	return "{" + strings.Join(parts, ",") + "}", nil
}

func formatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// escapeLabelValue escapes special characters in Prometheus label values
func escapeLabelValue(value string) string {
	// Escape backslash, newline, and double quote
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\n", "\\n")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	return value
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	return strings.ReplaceAll(help, "\n", "\\n")
}
