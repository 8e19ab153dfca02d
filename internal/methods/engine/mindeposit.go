package engine

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/smallbiznis/paymatrix/internal/methods/domain"
)

// ParseMinDeposit accepts numbers and numeric strings ("12,5" included).
// Negative, non-finite and non-numeric values are rejected.
func ParseMinDeposit(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(val), ",", ".")
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// MinDepositPayloads decodes every min-deposit shape present in a response.
func MinDepositPayloads(methods *domain.LoginMethods) []domain.MinDepositPayload {
	if methods == nil {
		return nil
	}
	var out []domain.MinDepositPayload

	if len(methods.MinDepositByKey) > 0 {
		keys := make([]string, 0, len(methods.MinDepositByKey))
		for k := range methods.MinDepositByKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		payload := domain.MinDepositPayload{Shape: domain.MinDepositShapeByKey}
		for _, k := range keys {
			title, name, ok := SplitLegacyKey(k)
			if !ok {
				continue
			}
			if v, ok := ParseMinDeposit(methods.MinDepositByKey[k]); ok {
				payload.Entries = append(payload.Entries, domain.MinDepositEntry{Title: title, Name: name, Value: v})
			}
		}
		out = append(out, payload)
	}

	if len(methods.MinDepositMap) > 0 {
		payload := domain.MinDepositPayload{Shape: domain.MinDepositShapeMap}
		for _, item := range methods.MinDepositMap {
			if item.Title == "" && item.Name == "" {
				continue
			}
			if v, ok := ParseMinDeposit(item.MinDeposit); ok {
				payload.Entries = append(payload.Entries, domain.MinDepositEntry{Title: item.Title, Name: item.Name, Value: v})
			}
		}
		out = append(out, payload)
	}

	if len(methods.MinDeposits) > 0 {
		payload := domain.MinDepositPayload{Shape: domain.MinDepositShapeLegacy}
		for _, item := range methods.MinDeposits {
			if item.Title == "" && item.Name == "" {
				continue
			}
			if v, ok := ParseMinDeposit(item.MinDeposit); ok {
				payload.Entries = append(payload.Entries, domain.MinDepositEntry{Title: item.Title, Name: item.Name, Value: v})
			}
		}
		out = append(out, payload)
	}

	return out
}

// ReconcileMinDeposits folds payloads into index keeping the smallest value
// per (title, name) key. index is created when nil.
func ReconcileMinDeposits(aliases AliasTable, index map[string]float64, payloads ...domain.MinDepositPayload) map[string]float64 {
	if index == nil {
		index = make(map[string]float64)
	}
	for _, payload := range payloads {
		for _, e := range payload.Entries {
			key := aliases.PairKey(e.Title, e.Name)
			if cur, ok := index[key]; !ok || e.Value < cur {
				index[key] = e.Value
			}
		}
	}
	return index
}

// groupMinDeposit is the smallest indexed value across a group's names.
func groupMinDeposit(aliases AliasTable, index map[string]float64, g *domain.MethodGroup) *float64 {
	var best *float64
	for _, name := range g.Names {
		v, ok := index[aliases.PairKey(g.Title, name)]
		if !ok {
			continue
		}
		if best == nil || v < *best {
			val := v
			best = &val
		}
	}
	return best
}
