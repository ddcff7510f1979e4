package util

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// SafeNestedString returns the string at the given field path, or "" if missing/wrong type.
func SafeNestedString(obj map[string]interface{}, fields ...string) string {
	if obj == nil {
		return ""
	}
	val, found, err := unstructured.NestedString(obj, fields...)
	if err != nil || !found {
		return ""
	}
	return val
}

// SafeNestedInt64 returns the int64 at the given field path, or 0 if missing.
func SafeNestedInt64(obj map[string]interface{}, fields ...string) int64 {
	if obj == nil {
		return 0
	}
	val, found, err := unstructured.NestedInt64(obj, fields...)
	if err != nil || !found {
		return 0
	}
	return val
}

// SafeNestedStringSlice returns the []string at the given field path, or nil if missing.
func SafeNestedStringSlice(obj map[string]interface{}, fields ...string) []string {
	if obj == nil {
		return nil
	}
	val, found, err := unstructured.NestedStringSlice(obj, fields...)
	if err != nil || !found {
		return nil
	}
	return val
}

// SafeNestedMap returns the nested map, or nil if missing.
func SafeNestedMap(obj map[string]interface{}, fields ...string) map[string]interface{} {
	if obj == nil {
		return nil
	}
	val, found, err := unstructured.NestedMap(obj, fields...)
	if err != nil || !found {
		return nil
	}
	return val
}

// SafeNestedSlice returns the nested slice, or nil if missing.
func SafeNestedSlice(obj map[string]interface{}, fields ...string) []interface{} {
	if obj == nil {
		return nil
	}
	val, found, err := unstructured.NestedSlice(obj, fields...)
	if err != nil || !found {
		return nil
	}
	return val
}

// SafeStringFromMap extracts a string value from a map by key.
// Returns "" if key is missing or value is not a string.
func SafeStringFromMap(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	val, ok := m[key]
	if !ok {
		return ""
	}
	strVal, ok := val.(string)
	if !ok {
		return ""
	}
	return strVal
}
