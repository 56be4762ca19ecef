package metrics

// MetricType is the exposition type of a metric family.
type MetricType string

const (
	CounterType MetricType = "counter"
	GaugeType   MetricType = "gauge"
)

// Descriptor describes a metric family. It is immutable once registered.
type Descriptor struct {
	Name       string     // Metric name (e.g., "plex_sessions_active")
	Help       string     // Help text
	Type       MetricType // counter or gauge
	LabelNames []string   // Ordered label names; every point carries exactly these labels
}

// MetricPoint represents a single metric observation with labels and value
type MetricPoint struct {
	Labels map[string]string
	Value  float64
}

// MetricFamily represents a family of metrics (e.g., all plex_session_details metrics)
type MetricFamily struct {
	Name       string
	Help       string
	Type       MetricType
	LabelNames []string
	Metrics    []MetricPoint
}

// MetricsData holds all metrics to be exported
type MetricsData struct {
	Families []MetricFamily
}

// Family returns the family with the given name, or nil.
func (d *MetricsData) Family(name string) *MetricFamily {
	for i := range d.Families {
		if d.Families[i].Name == name {
			return &d.Families[i]
		}
	}
	return nil
}

func (d Descriptor) equal(other Descriptor) bool {
	if d.Name != other.Name || d.Type != other.Type || len(d.LabelNames) != len(other.LabelNames) {
		return false
	}
	for i := range d.LabelNames {
		if d.LabelNames[i] != other.LabelNames[i] {
			return false
		}
	}
	return true
}
