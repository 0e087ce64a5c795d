package store

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// jsonColumn encodes map updates for serializer:json columns, which
// UpdateColumns with a map does not run through the serializer
func jsonColumn(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}
