package config

import "github.com/go-viper/mapstructure/v2"

// DecodeCapability populates out from a capability's free-form config
// map (the map a source/sink/analyzer/serializer factory receives) using
// the same decoding engine Load uses for the YAML tree, with the
// duration-from-string hook enabled: a capability field declared as
// time.Duration accepts the same "5s"-style string an operator writes
// in YAML, rather than requiring every factory to call
// time.ParseDuration by hand.
func DecodeCapability(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: false,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}
