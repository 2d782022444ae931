package services

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// eventPayload builds the opaque JSON body of an audit event row.
func eventPayload(category, op string, fields map[string]interface{}) datatypes.JSON {
	body := map[string]interface{}{
		"category": category,
		"op":       op,
	}
	for k, v := range fields {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(raw)
}
