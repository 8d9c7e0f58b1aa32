package policy

import (
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// DateLayout is the YYYY/MM/DD format written into snapshot tags and descriptions.
const DateLayout = "2006/01/02"

// ParseTags is a generic helper to unmarshal a tag map into a strongly-typed
// struct using its json struct tags. Time fields are parsed with DateLayout.
//
// Input is not weakly typed: a marker such as "True" or "1" stays a string
// and never becomes a boolean.
func ParseTags[T any](tags map[string]string) (*T, error) {
	var result T

	config := &mapstructure.DecoderConfig{
		Result:  &result,
		TagName: "json",
		// Tag keys are case-sensitive.
		MatchName: func(mapKey, fieldName string) bool {
			return mapKey == fieldName
		},
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(DateLayout),
		),
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(tags); err != nil {
		return nil, err
	}

	return &result, nil
}

// FormatDate renders the calendar date of t with DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
