package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/meditimer/internal/app/notification"
	"github.com/osa030/meditimer/internal/app/progress"
	"github.com/osa030/meditimer/internal/domain/timer"
)

// toStruct converts a JSON-tagged value to a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, errors.Wrap(err, "failed to convert message")
	}
	return out, nil
}

// fromStruct converts a protobuf Struct back into a JSON-tagged value.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := s.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "failed to marshal struct")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "failed to decode struct")
	}
	return nil
}

// SnapshotToStruct converts a progress snapshot to its wire form.
func SnapshotToStruct(snap progress.Snapshot) (*structpb.Struct, error) {
	return toStruct(snap)
}

// SnapshotFromStruct converts the wire form back into a snapshot.
func SnapshotFromStruct(s *structpb.Struct) (progress.Snapshot, error) {
	var snap progress.Snapshot
	err := fromStruct(s, &snap)
	return snap, err
}

// NotificationToStruct converts a notification to its wire form.
func NotificationToStruct(n *notification.Notification) (*structpb.Struct, error) {
	return toStruct(n)
}

// NotificationFromStruct converts the wire form back into a notification.
func NotificationFromStruct(s *structpb.Struct) (*notification.Notification, error) {
	var n notification.Notification
	if err := fromStruct(s, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ConfigOverrides builds the Start request body from explicit session
// settings. Keys follow the session config field names.
func ConfigOverrides(values map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(values)
	if err != nil {
		return nil, errors.Wrap(err, "invalid session overrides")
	}
	return s, nil
}

// applyOverrides decodes the fields of a Start request onto base.
// Unknown keys are rejected.
func applyOverrides(base timer.Config, fields *structpb.Struct) (timer.Config, error) {
	if fields == nil || len(fields.GetFields()) == 0 {
		return base, nil
	}

	cfg := base
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return timer.Config{}, errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(fields.AsMap()); err != nil {
		return timer.Config{}, errors.Wrap(err, "failed to decode session overrides")
	}

	// A new bell without a new ending bell ends on the new bell.
	if _, ok := fields.GetFields()["last_bell_sound"]; !ok {
		if _, ok := fields.GetFields()["bell_sound"]; ok {
			cfg.LastBellSound = ""
		}
	}
	cfg = cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return timer.Config{}, err
	}
	return cfg, nil
}
