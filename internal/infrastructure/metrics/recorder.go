package metrics

// Recorder fans attribute store events out to the collector and, when
// configured, the Prometheus exporter. A nil *Recorder records nothing.
type Recorder struct {
	collector *Collector
	exporter  *PrometheusExporter
}

// NewRecorder creates a recorder; exporter may be nil.
func NewRecorder(collector *Collector, exporter *PrometheusExporter) *Recorder {
	return &Recorder{collector: collector, exporter: exporter}
}

// RecordAttributeWrite counts a successful attribute write.
func (r *Recorder) RecordAttributeWrite(valueType string) {
	if r == nil {
		return
	}
	r.collector.RecordAttributeWrite(valueType)
	if r.exporter != nil {
		r.exporter.RecordAttributeWrite(valueType)
	}
}

// RecordKindChange counts an accepted kind change.
func (r *Recorder) RecordKindChange() {
	if r == nil {
		return
	}
	r.collector.RecordKindChange()
	if r.exporter != nil {
		r.exporter.RecordKindChange()
	}
}
