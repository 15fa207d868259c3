package access

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/text/cases"
)

// ErrMalformedPayload marks a group permission or restriction payload that cannot be read.
var ErrMalformedPayload = errors.New("access: malformed group payload")

var keyFolder = cases.Fold()

func normalizeKey(key string) string {
	return keyFolder.String(strings.TrimSpace(key))
}

// DecodePermissions parses a groups.permissions payload. Grants may be booleans, 0/1 numbers
// or the strings true/false/1/0/on/off. A null or empty payload yields an empty set.
func DecodePermissions(raw []byte) (PermissionSet, error) {
	if isNullPayload(raw) {
		return PermissionSet{}, nil
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return PermissionSet{}, fmt.Errorf("%w: permissions: %v", ErrMalformedPayload, err)
	}
	perms := make(PermissionSet, len(values))
	for key, value := range values {
		granted, err := grantValue(value)
		if err != nil {
			return PermissionSet{}, fmt.Errorf("%w: permission %q: %v", ErrMalformedPayload, key, err)
		}
		key = normalizeKey(key)
		if key == "" {
			continue
		}
		perms[key] = perms[key] || granted
	}
	return perms, nil
}

func grantValue(value any) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "on", "yes":
			return true, nil
		case "", "0", "false", "off", "no":
			return false, nil
		}
		return false, fmt.Errorf("unsupported grant %q", v)
	}
	return false, fmt.Errorf("unsupported grant type %T", value)
}

type restrictionPayload struct {
	Companies     idList `json:"companies"`
	Departments   idList `json:"departments"`
	DocumentTypes idList `json:"document_types"`
}

// DecodeRestrictions parses a groups.restrictions payload. Ids may be numbers or numeric
// strings.
func DecodeRestrictions(raw []byte) (RestrictionSet, error) {
	if isNullPayload(raw) {
		return RestrictionSet{}, nil
	}
	var payload restrictionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return RestrictionSet{}, fmt.Errorf("%w: restrictions: %v", ErrMalformedPayload, err)
	}
	return RestrictionSet{
		Companies:     uniqueIDs(payload.Companies),
		Departments:   uniqueIDs(payload.Departments),
		DocumentTypes: uniqueIDs(payload.DocumentTypes),
	}, nil
}

type idList []int64

func (l *idList) UnmarshalJSON(data []byte) error {
	if isNullPayload(data) {
		*l = nil
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		text := strings.Trim(string(bytes.TrimSpace(item)), `"`)
		id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %s", item)
		}
		out = append(out, id)
	}
	*l = out
	return nil
}

func isNullPayload(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func encodeSnapshot(snapshot EffectivePermissions) ([]byte, error) {
	return json.Marshal(snapshot)
}

func decodeSnapshot(raw []byte) (EffectivePermissions, error) {
	var snapshot EffectivePermissions
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return EffectivePermissions{}, err
	}
	return snapshot, nil
}
