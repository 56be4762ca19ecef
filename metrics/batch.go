package metrics

import "fmt"

type opKind int

const (
	opSet opKind = iota
	opAdd
	opReplace
)

type batchOp struct {
	kind   opKind
	name   string
	keys   []string
	points []MetricPoint
}

// Batch buffers registry updates so they can be applied atomically with Registry.Commit.
// Operations are validated when recorded; nothing is visible to readers until Commit.
type Batch struct {
	registry *Registry
	ops      []batchOp
}

// NewBatch starts an empty batch for this registry.
func (r *Registry) NewBatch() *Batch {
	return &Batch{registry: r}
}

// Len returns the number of recorded operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Set records a point value.
func (b *Batch) Set(name string, labels map[string]string, value float64) error {
	desc, key, err := b.resolve(name, labels)
	if err != nil {
		return err
	}
	b.ops = append(b.ops, batchOp{
		kind:   opSet,
		name:   desc.Name,
		keys:   []string{key},
		points: []MetricPoint{{Labels: copyLabels(labels), Value: value}},
	})
	return nil
}

// Add records an increment.
func (b *Batch) Add(name string, labels map[string]string, delta float64) error {
	desc, key, err := b.resolve(name, labels)
	if err != nil {
		return err
	}
	if desc.Type == CounterType && delta < 0 {
		return fmt.Errorf("%w: %s delta %v", ErrNegativeCounterDelta, name, delta)
	}
	b.ops = append(b.ops, batchOp{
		kind:   opAdd,
		name:   desc.Name,
		keys:   []string{key},
		points: []MetricPoint{{Labels: copyLabels(labels), Value: delta}},
	})
	return nil
}

// ReplaceAll records a full replacement of a family's points. Points with the same
// label values collapse to the last one.
func (b *Batch) ReplaceAll(name string, points []MetricPoint) error {
	desc, ok := b.registry.Descriptor(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMetric, name)
	}

	op := batchOp{
		kind:   opReplace,
		name:   desc.Name,
		keys:   make([]string, 0, len(points)),
		points: make([]MetricPoint, 0, len(points)),
	}
	for _, p := range points {
		key, err := seriesKey(desc, p.Labels)
		if err != nil {
			return err
		}
		op.keys = append(op.keys, key)
		op.points = append(op.points, MetricPoint{Labels: copyLabels(p.Labels), Value: p.Value})
	}
	b.ops = append(b.ops, op)
	return nil
}

// Append moves the operations of other to the end of b. Both batches must belong
// to the same registry; other is left empty.
func (b *Batch) Append(other *Batch) error {
	if other == nil {
		return nil
	}
	if other.registry != b.registry {
		return fmt.Errorf("cannot append a batch from a different registry")
	}
	b.ops = append(b.ops, other.ops...)
	other.ops = nil
	return nil
}

func (b *Batch) resolve(name string, labels map[string]string) (Descriptor, string, error) {
	desc, ok := b.registry.Descriptor(name)
	if !ok {
		return Descriptor{}, "", fmt.Errorf("%w: %s", ErrUnknownMetric, name)
	}
	key, err := seriesKey(desc, labels)
	if err != nil {
		return Descriptor{}, "", err
	}
	return desc, key, nil
}
