package storage

import (
	"encoding/json"
	"errors"

	"substrata/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned returns the record header for the current schema and codec.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeConditionRecord(r model.ConditionRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeConditionRecord(data []byte) (model.ConditionRecord, error) {
	var record model.ConditionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.ConditionRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.ConditionRecord{}, err
	}
	return record, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
