// Package cfg decodes raw TOML tables into typed service and driver configs.
package cfg

import (
	"fmt"
	"slices"

	"github.com/mitchellh/mapstructure"
)

// Setter is implemented by config structs that fill in their own defaults.
// ApplyDefaults runs after decoding.
type Setter interface {
	ApplyDefaults()
}

func newDecoder(target any, md *mapstructure.Metadata) (*mapstructure.Decoder, error) {
	return mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         md,
		Result:           target,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
}

// Decode decodes input into target. A nil input leaves target at its zero
// value before defaults are applied.
func Decode(input map[string]any, target any) error {
	_, err := DecodeWithUnused(input, target)
	return err
}

// DecodeWithUnused is Decode that also reports keys no field consumed, sorted.
func DecodeWithUnused(input map[string]any, target any) ([]string, error) {
	var md mapstructure.Metadata
	dec, err := newDecoder(target, &md)
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(input); err != nil {
		return nil, err
	}
	if s, ok := target.(Setter); ok {
		s.ApplyDefaults()
	}
	unused := slices.Clone(md.Unused)
	slices.Sort(unused)
	return unused, nil
}

// DecodeStrict fails when any key is left unused.
func DecodeStrict(input map[string]any, target any) error {
	unused, err := DecodeWithUnused(input, target)
	if err != nil {
		return err
	}
	if len(unused) > 0 {
		return fmt.Errorf("unknown config keys: %v", unused)
	}
	return nil
}
