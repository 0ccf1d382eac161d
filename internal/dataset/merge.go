package dataset

// The config merge engine reconciles the list-valued parts of a dataset
// (denorm fields, transformations, connector configs, source configs, tags)
// against a requested set of changes. Each list type has a stable identity
// key; the algorithm is identical for all of them.

// ChangeAction tags a requested change as an upsert or a removal.
type ChangeAction string

// Supported change actions.
const (
	ChangeUpsert ChangeAction = "upsert"
	ChangeRemove ChangeAction = "remove"
)

// IsValid reports whether a is a known change action.
func (a ChangeAction) IsValid() bool {
	return a == ChangeUpsert || a == ChangeRemove
}

// Change is one requested modification of a list-valued config.
type Change[T any] struct {
	Action ChangeAction `json:"action"`
	Value  T            `json:"value"`
}

// Reconcile merges a list of requested changes into the current list of
// configuration items. keyFn extracts the stable identity key of an item.
//
// The result is: all upserted values (in request order, later upserts of the
// same key winning) followed by the current items whose key was neither
// upserted nor removed, in their original order. The output never contains
// two items with the same key.
//
// Removals of unknown keys and duplicate removals are no-ops, which makes the
// operation idempotent: re-merging the output with an empty change list
// returns the output unchanged.
func Reconcile[T any](current []T, changes []Change[T], keyFn func(T) string) []T {
	removed := make(map[string]struct{})
	upserted := make(map[string]int) // key -> index into result

	result := make([]T, 0, len(current)+len(changes))

	for _, change := range changes {
		key := keyFn(change.Value)

		switch change.Action {
		case ChangeRemove:
			removed[key] = struct{}{}
		case ChangeUpsert:
			if i, ok := upserted[key]; ok {
				result[i] = change.Value

				continue
			}

			upserted[key] = len(result)
			result = append(result, change.Value)
		}
	}

	for _, item := range current {
		key := keyFn(item)

		if _, ok := removed[key]; ok {
			continue
		}

		if _, ok := upserted[key]; ok {
			continue
		}

		result = append(result, item)
	}

	return result
}

// DuplicateUpsertKeys returns the identity keys that appear more than once
// among the upsert-tagged changes, in first-occurrence order. Callers reject
// such change sets as invalid input before any merge or mutation happens.
func DuplicateUpsertKeys[T any](changes []Change[T], keyFn func(T) string) []string {
	seen := make(map[string]int)

	var duplicates []string

	for _, change := range changes {
		if change.Action != ChangeUpsert {
			continue
		}

		key := keyFn(change.Value)

		seen[key]++
		if seen[key] == 2 {
			duplicates = append(duplicates, key)
		}
	}

	return duplicates
}

// Identity key extractors for the five list-valued config types.

// DenormFieldKey keys a denorm field by its output field name.
func DenormFieldKey(f DenormField) string { return f.DenormOutField }

// TransformationKey keys a transformation by the field it transforms.
func TransformationKey(t TransformationConfig) string { return t.FieldKey }

// ConnectorKey keys a connector config by its connector id.
func ConnectorKey(c ConnectorConfig) string { return c.ConnectorID }

// SourceConfigKey keys a source config by its record id.
func SourceConfigKey(s SourceConfig) string { return s.ID }

// TagKey keys a tag by itself: the tag string is both identity and value.
func TagKey(tag string) string { return tag }
