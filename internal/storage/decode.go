package storage

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/fintrack/internal/common"
)

// Decode unmarshals one row into a new T.
func Decode[T any](raw json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: decode record: %w", common.ErrStorage, err)
	}
	return &v, nil
}

// DecodeAll unmarshals every row into a T.
func DecodeAll[T any](rows Rows) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, raw := range rows {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: decode record: %w", common.ErrStorage, err)
		}
		out = append(out, v)
	}
	return out, nil
}
