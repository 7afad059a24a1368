package models

import (
	"fmt"
	"strings"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
)

// decodeDoc turns a stored document into T. Unknown stored fields are ignored so older
// documents still load.
func decodeDoc[T any](snap *docstore.Snapshot) (*T, error) {
	out, err := utils.MapToStruct[T](snap.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", snap.Path, err)
	}
	return out, nil
}

// encodeDoc serializes v for storage, dropping identifier fields that live in the path.
func encodeDoc(v any, pathFields ...string) (docstore.Data, error) {
	m, err := utils.StructToMap(v)
	if err != nil {
		return nil, err
	}
	for _, f := range pathFields {
		delete(m, f)
	}
	return docstore.Data(m), nil
}

// checkFields type-checks a partial update against T: unknown fields and wrong value
// types are rejected. The decoded value is returned for tag validation.
func checkFields[T any](fields docstore.Data, immutable ...string) (*T, error) {
	if err := checkPartial(fields); err != nil {
		return nil, err
	}
	for _, f := range immutable {
		if _, ok := fields[f]; ok {
			return nil, utils.NewValidationError(f, "cannot be changed")
		}
	}
	out, err := utils.MapToStructStrict[T](fields)
	if err != nil {
		return nil, utils.NewValidationError("fields", cleanDecodeError(err))
	}
	return out, nil
}

func cleanDecodeError(err error) string {
	msg := err.Error()
	msg = strings.TrimPrefix(msg, "json: ")
	return msg
}
