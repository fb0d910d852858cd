package worker

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/fairaudit/internal/backend"
	"github.com/danielpatrickdp/fairaudit/internal/metric"
)

var (
	ErrUnknownMetric = errors.New("worker: unknown metric")
	ErrBadMessage    = errors.New("worker: malformed message")
)

// #region request
// encodeRequest packs a metric evaluation. Only built-in metrics travel; the
// worker resolves them by name.
func encodeRequest(m metric.Metric, in metric.Input) (*structpb.Struct, error) {
	fields := map[string]any{
		"metric":         m.Name,
		"max_prediction": in.MaxPrediction,
	}
	for key, t := range map[string]backend.Tensor{
		"predictions": in.Predictions,
		"labels":      in.Labels,
		"sensitive":   in.Sensitive,
	} {
		if t != nil {
			fields[key] = floatList(t.Float64s())
		}
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return s, nil
}

func decodeRequest(s *structpb.Struct) (metric.Metric, metric.Input, error) {
	f := s.GetFields()
	name := f["metric"].GetStringValue()
	m, ok := metric.Lookup(name)
	if !ok {
		return metric.Metric{}, metric.Input{}, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	in := metric.Input{MaxPrediction: f["max_prediction"].GetNumberValue()}
	var err error
	if in.Predictions, err = tensorField(f, "predictions"); err != nil {
		return metric.Metric{}, metric.Input{}, err
	}
	if in.Labels, err = tensorField(f, "labels"); err != nil {
		return metric.Metric{}, metric.Input{}, err
	}
	if in.Sensitive, err = tensorField(f, "sensitive"); err != nil {
		return metric.Metric{}, metric.Input{}, err
	}
	return m, in, nil
}
// #endregion request

// #region result
func encodeResult(r metric.Result) (*structpb.Struct, error) {
	names := make([]any, len(r.Fields))
	values := make([]any, len(r.Fields))
	for i, field := range r.Fields {
		names[i] = field.Name
		values[i] = field.Value
	}
	s, err := structpb.NewStruct(map[string]any{
		"value":        r.Value,
		"field_names":  names,
		"field_values": values,
	})
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return s, nil
}

func decodeResult(s *structpb.Struct) (metric.Result, error) {
	f := s.GetFields()
	value, ok := f["value"]
	if !ok {
		return metric.Result{}, fmt.Errorf("%w: no value", ErrBadMessage)
	}
	names := f["field_names"].GetListValue().GetValues()
	values := f["field_values"].GetListValue().GetValues()
	if len(names) != len(values) {
		return metric.Result{}, fmt.Errorf("%w: %d field names for %d values", ErrBadMessage, len(names), len(values))
	}
	r := metric.Result{Value: value.GetNumberValue(), Fields: make([]metric.Field, len(names))}
	for i := range names {
		r.Fields[i] = metric.Field{Name: names[i].GetStringValue(), Value: values[i].GetNumberValue()}
	}
	return r, nil
}
// #endregion result

// #region helpers
func floatList(xs []float64) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

// tensorField returns nil when key is absent.
func tensorField(f map[string]*structpb.Value, key string) (backend.Tensor, error) {
	v, ok := f[key]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: %s is not a list", ErrBadMessage, key)
	}
	xs := make([]float64, len(list.GetValues()))
	for i, item := range list.GetValues() {
		if _, isNum := item.GetKind().(*structpb.Value_NumberValue); !isNum {
			return nil, fmt.Errorf("%w: %s[%d] is not a number", ErrBadMessage, key, i)
		}
		xs[i] = item.GetNumberValue()
	}
	return backend.New(xs), nil
}
// #endregion helpers
