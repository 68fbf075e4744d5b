// Package configutil decodes the free-form provider maps that arrive from
// config files, start-call requests and admin updates.
package configutil

import (
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Schema lists the keys a settings map may carry. Key matching ignores case,
// underscores and hyphens, so "api_key", "apiKey" and "API-KEY" are one key.
type Schema struct {
	Required []string
	Optional []string
}

// KeyError reports missing or unrecognized keys.
type KeyError struct {
	Missing []string
	Unknown []string
}

func (e *KeyError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(e.Unknown, ", "))
	}
	return strings.Join(parts, "; ")
}

// Check validates input against the schema without decoding it.
func (s Schema) Check(input map[string]any) error {
	required := make(map[string]string, len(s.Required))
	for _, k := range s.Required {
		required[normalizeKey(k)] = k
	}
	allowed := make(map[string]bool, len(s.Required)+len(s.Optional))
	for k := range required {
		allowed[k] = true
	}
	for _, k := range s.Optional {
		allowed[normalizeKey(k)] = true
	}

	var ke KeyError
	present := make(map[string]bool, len(input))
	for k, v := range input {
		nk := normalizeKey(k)
		if !allowed[nk] {
			ke.Unknown = append(ke.Unknown, k)
			continue
		}
		if !blank(v) {
			present[nk] = true
		}
	}
	for nk, k := range required {
		if !present[nk] {
			ke.Missing = append(ke.Missing, k)
		}
	}
	if len(ke.Missing) == 0 && len(ke.Unknown) == 0 {
		return nil
	}
	sort.Strings(ke.Missing)
	sort.Strings(ke.Unknown)
	return &ke
}

// Decode checks input and then decodes it into out, a pointer to a struct
// with mapstructure tags. Scalars are weakly typed so "8080" fills an int.
func (s Schema) Decode(input map[string]any, out any) error {
	if err := s.Check(input); err != nil {
		return err
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func blank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}

func normalizeKey(value string) string {
	return strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(value))
}
