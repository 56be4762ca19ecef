package metrics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/common/model"
)

var (
	// ErrDuplicateMetric is returned when a name is registered twice with a different type or label set.
	ErrDuplicateMetric = errors.New("metric already registered with a different descriptor")
	// ErrUnknownMetric is returned when updating a name that was never registered.
	ErrUnknownMetric = errors.New("metric not registered")
	// ErrLabelMismatch is returned when a point's labels differ from the descriptor's label names.
	ErrLabelMismatch = errors.New("labels do not match descriptor")
	// ErrInvalidDescriptor is returned for names or label names that are not valid in the exposition format.
	ErrInvalidDescriptor = errors.New("invalid metric descriptor")
	// ErrNegativeCounterDelta is returned when a counter would decrease.
	ErrNegativeCounterDelta = errors.New("counter cannot decrease")
)

// family is the registry's state for one descriptor.
// series is keyed by the label values joined in descriptor order.
type family struct {
	desc   Descriptor
	series map[string]MetricPoint
}

// Registry holds metric descriptors and their current points.
// All mutation and snapshot calls go through a single RWMutex, so a snapshot never
// observes a partially applied update.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	families map[string]*family
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		families: make(map[string]*family),
	}
}

// Register adds a descriptor. Registering an identical descriptor again is a no-op.
func (r *Registry) Register(desc Descriptor) error {
	if err := validateDescriptor(desc); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.families[desc.Name]; ok {
		if existing.desc.equal(desc) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateMetric, desc.Name)
	}

	labelNames := make([]string, len(desc.LabelNames))
	copy(labelNames, desc.LabelNames)
	desc.LabelNames = labelNames

	r.families[desc.Name] = &family{
		desc:   desc,
		series: make(map[string]MetricPoint),
	}
	r.order = append(r.order, desc.Name)
	return nil
}

// MustRegister registers descriptors and panics on the first error.
func (r *Registry) MustRegister(descs ...Descriptor) {
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Descriptor returns the registered descriptor for name.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.families[name]
	if !ok {
		return Descriptor{}, false
	}
	return f.desc, true
}

// Set sets the value of one point, replacing any point with the same label values.
func (r *Registry) Set(name string, labels map[string]string, value float64) error {
	b := r.NewBatch()
	if err := b.Set(name, labels, value); err != nil {
		return err
	}
	return r.Commit(b)
}

// Add adds delta to one point. Counters reject negative deltas.
func (r *Registry) Add(name string, labels map[string]string, delta float64) error {
	b := r.NewBatch()
	if err := b.Add(name, labels, delta); err != nil {
		return err
	}
	return r.Commit(b)
}

// ReplaceAll swaps the complete point set of a family.
func (r *Registry) ReplaceAll(name string, points []MetricPoint) error {
	b := r.NewBatch()
	if err := b.ReplaceAll(name, points); err != nil {
		return err
	}
	return r.Commit(b)
}

// Value returns the current value of one point.
func (r *Registry) Value(name string, labels map[string]string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.families[name]
	if !ok {
		return 0, false
	}
	key, err := seriesKey(f.desc, labels)
	if err != nil {
		return 0, false
	}
	p, ok := f.series[key]
	return p.Value, ok
}

// Snapshot returns a deep copy of all families in registration order.
// Points within a family are sorted by label values.
func (r *Registry) Snapshot() *MetricsData {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data := &MetricsData{
		Families: make([]MetricFamily, 0, len(r.order)),
	}

	for _, name := range r.order {
		f := r.families[name]

		keys := make([]string, 0, len(f.series))
		for k := range f.series {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		points := make([]MetricPoint, 0, len(keys))
		for _, k := range keys {
			p := f.series[k]
			points = append(points, MetricPoint{
				Labels: copyLabels(p.Labels),
				Value:  p.Value,
			})
		}

		labelNames := make([]string, len(f.desc.LabelNames))
		copy(labelNames, f.desc.LabelNames)

		data.Families = append(data.Families, MetricFamily{
			Name:       f.desc.Name,
			Help:       f.desc.Help,
			Type:       f.desc.Type,
			LabelNames: labelNames,
			Metrics:    points,
		})
	}

	return data
}

// Commit applies every operation recorded in the batch inside one critical section.
// The batch must not be reused afterwards.
func (r *Registry) Commit(b *Batch) error {
	if b.registry != r {
		return errors.New("batch belongs to a different registry")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, op := range b.ops {
		f := r.families[op.name]
		switch op.kind {
		case opReplace:
			series := make(map[string]MetricPoint, len(op.points))
			for i, p := range op.points {
				series[op.keys[i]] = p
			}
			f.series = series
		case opSet:
			f.series[op.keys[0]] = op.points[0]
		case opAdd:
			p := op.points[0]
			if cur, ok := f.series[op.keys[0]]; ok {
				p.Value += cur.Value
			}
			f.series[op.keys[0]] = p
		}
	}
	b.ops = nil
	return nil
}

func validateDescriptor(desc Descriptor) error {
	if !model.MetricNameRE.MatchString(desc.Name) {
		return fmt.Errorf("%w: bad metric name %q", ErrInvalidDescriptor, desc.Name)
	}
	if desc.Type != CounterType && desc.Type != GaugeType {
		return fmt.Errorf("%w: %s has unsupported type %q", ErrInvalidDescriptor, desc.Name, desc.Type)
	}
	seen := make(map[string]struct{}, len(desc.LabelNames))
	for _, l := range desc.LabelNames {
		if !model.LabelNameRE.MatchString(l) || strings.HasPrefix(l, "__") {
			return fmt.Errorf("%w: %s has bad label name %q", ErrInvalidDescriptor, desc.Name, l)
		}
		if _, dup := seen[l]; dup {
			return fmt.Errorf("%w: %s repeats label %q", ErrInvalidDescriptor, desc.Name, l)
		}
		seen[l] = struct{}{}
	}
	return nil
}

// seriesKey checks that labels carry exactly the descriptor's label names and
// returns the key identifying the series.
func seriesKey(desc Descriptor, labels map[string]string) (string, error) {
	if len(labels) != len(desc.LabelNames) {
		return "", fmt.Errorf("%w: %s expects %v", ErrLabelMismatch, desc.Name, desc.LabelNames)
	}
	if len(desc.LabelNames) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for i, name := range desc.LabelNames {
		v, ok := labels[name]
		if !ok {
			return "", fmt.Errorf("%w: %s missing label %q", ErrLabelMismatch, desc.Name, name)
		}
		if i > 0 {
			sb.WriteByte(0xff)
		}
		sb.WriteString(v)
	}
	return sb.String(), nil
}

func copyLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
