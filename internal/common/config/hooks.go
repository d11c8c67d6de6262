package config

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Seconds is a model runtime in whole seconds. Config files may give it either as a number of
// seconds or as a duration string such as "3h".
type Seconds int

// Hours renders the runtime the way checksum file names do, e.g. 86400 -> "24".
func (s Seconds) Hours() string {
	return strconv.Itoa(int(s) / 3600)
}

// CustomHooks replace viper's default decode hook, so the defaults are composed back in.
var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		SecondsDecodeHook(),
	)),
}

func SecondsDecodeHook() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != reflect.TypeOf(Seconds(0)) || f.Kind() != reflect.String {
			return data, nil
		}
		return ParseSeconds(data.(string))
	}
}

// ParseSeconds accepts "86400" as well as "24h".
func ParseSeconds(s string) (Seconds, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return Seconds(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid runtime %q", s)
	}
	if d%time.Second != 0 {
		return 0, errors.Errorf("runtime %q is not a whole number of seconds", s)
	}
	return Seconds(d / time.Second), nil
}
