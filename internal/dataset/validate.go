package dataset

import "strings"

// ValidateNew checks a dataset create payload before anything is persisted.
// All violations are InvalidInput errors; the first one found is returned.
func ValidateNew(d *Dataset) error {
	if strings.TrimSpace(d.ID) == "" {
		return InvalidInput(CodeInvalidInput, "dataset id is required")
	}

	if !d.Type.IsValid() {
		return InvalidInput(CodeInvalidInput, "dataset type must be %q or %q", TypeEvent, TypeMaster)
	}

	if d.DataSchema == nil {
		return InvalidInput(CodeInvalidInput, "data_schema is required")
	}

	if err := ValidateDenormConfig(d); err != nil {
		return err
	}

	if dup := duplicateStrings(connectorIDs(d.ConnectorsConfig)); len(dup) > 0 {
		return InvalidInput(CodeDuplicateConnector,
			"dataset contains duplicate connector ids: %v", dup)
	}

	if dup := duplicateStrings(d.Tags); len(dup) > 0 {
		return InvalidInput(CodeInvalidInput, "dataset contains duplicate tags: %v", dup)
	}

	return nil
}

// ValidateDenormConfig rejects self-references and duplicate output fields in
// a dataset's denorm config.
func ValidateDenormConfig(d *Dataset) error {
	fields := d.DenormFields()
	if len(fields) == 0 {
		return nil
	}

	outFields := make([]string, 0, len(fields))

	for _, f := range fields {
		if f.DatasetID == d.ID {
			return Conflict(CodeSelfReferencingMaster,
				"dataset %s cannot denorm-reference itself", d.ID)
		}

		outFields = append(outFields, f.DenormOutField)
	}

	if dup := duplicateStrings(outFields); len(dup) > 0 {
		return InvalidInput(CodeDuplicateDenormKey,
			"dataset contains duplicate denorm out keys: %v", dup)
	}

	return nil
}

// ValidateReady applies the stricter completeness checks a draft must pass
// before it can transition to ReadyToPublish.
func ValidateReady(d *Dataset, transformations []TransformationConfig) error {
	if d.DataSchema == nil {
		return InvalidInput(CodeConfigsInvalid, "dataset %s has no data schema", d.ID)
	}

	if d.KeysConfig == nil || d.KeysConfig.TimestampKey == "" {
		return InvalidInput(CodeConfigsInvalid, "dataset %s has no timestamp key", d.ID)
	}

	if d.RouterConfig == nil || d.RouterConfig.Topic == "" {
		return InvalidInput(CodeConfigsInvalid, "dataset %s has no router topic", d.ID)
	}

	if d.Type == TypeMaster && (d.KeysConfig.DataKey == "") {
		return InvalidInput(CodeConfigsInvalid, "master dataset %s has no data key", d.ID)
	}

	if err := ValidateDenormConfig(d); err != nil {
		return err
	}

	keys := make([]string, 0, len(transformations))
	for _, tf := range transformations {
		keys = append(keys, tf.FieldKey)
	}

	if dup := duplicateStrings(keys); len(dup) > 0 {
		return InvalidInput(CodeDuplicateFieldKey,
			"dataset contains duplicate transformation field keys: %v", dup)
	}

	return nil
}

func connectorIDs(configs []ConnectorConfig) []string {
	ids := make([]string, 0, len(configs))
	for _, c := range configs {
		ids = append(ids, c.ConnectorID)
	}

	return ids
}

// duplicateStrings returns the values occurring more than once, in
// first-duplicate order.
func duplicateStrings(values []string) []string {
	seen := make(map[string]int)

	var duplicates []string

	for _, v := range values {
		seen[v]++
		if seen[v] == 2 {
			duplicates = append(duplicates, v)
		}
	}

	return duplicates
}
