package anki

import (
	"encoding/json"
	"fmt"

	"github.com/conorfennell/ankipack/internal/common"
)

// object is a JSON object whose keys are not all modelled by a Go struct.
type object map[string]json.RawMessage

// decodeObject unmarshals raw into v and returns the keys v does not know.
func decodeObject(raw []byte, v any, known ...string) (object, error) {
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("%w: malformed catalog object: %w", common.ErrValidation, err)
	}
	var all object
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("%w: malformed catalog object: %w", common.ErrValidation, err)
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// encodeObject marshals v and lays the extra keys back in next to it.
func encodeObject(v any, extra object) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return raw, nil
	}
	var merged object
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// nestedKeys is what a decoded nested object held beyond its Go fields:
// unknown keys, and known keys that were missing from it.
type nestedKeys struct {
	extra  object
	absent map[string]bool
}

// decodeNested unmarshals raw into v and records its unknown and missing keys.
func decodeNested(raw []byte, v any, known ...string) (nestedKeys, error) {
	var all object
	if err := json.Unmarshal(raw, &all); err != nil {
		return nestedKeys{}, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nestedKeys{}, err
	}
	var keys nestedKeys
	for _, k := range known {
		if _, ok := all[k]; !ok {
			if keys.absent == nil {
				keys.absent = map[string]bool{}
			}
			keys.absent[k] = true
		}
		delete(all, k)
	}
	if len(all) > 0 {
		keys.extra = all
	}
	return keys, nil
}

// encodeNested marshals v, leaves out known keys that were missing and are
// still unset, and lays the unknown keys back in.
func encodeNested(v any, keys nestedKeys) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(keys.extra) == 0 && len(keys.absent) == 0 {
		return raw, nil
	}
	var merged object
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	for k := range keys.absent {
		if isZeroJSON(merged[k]) {
			delete(merged, k)
		}
	}
	for k, v := range keys.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func isZeroJSON(v json.RawMessage) bool {
	switch string(v) {
	case "", "null", "0", "false", `""`, "[]", "{}":
		return true
	}
	return false
}

// decodeCatalog splits a col catalog column into its id-keyed objects.
func decodeCatalog(column string) (map[string]json.RawMessage, error) {
	var catalog map[string]json.RawMessage
	if err := json.Unmarshal([]byte(column), &catalog); err != nil {
		return nil, fmt.Errorf("%w: malformed catalog: %w", common.ErrValidation, err)
	}
	return catalog, nil
}

// checkCatalogKey enforces that a catalog key matches the id inside its object.
func checkCatalogKey(key string, id int64) error {
	if key != fmt.Sprint(id) {
		return fmt.Errorf("%w: catalog key %q does not match object id %d", common.ErrValidation, key, id)
	}
	return nil
}
