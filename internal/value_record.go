package internal

import (
	"context"
	"fmt"
	"strings"

	"github.com/lychee-technology/hydra"
	"go.uber.org/zap"
)

// ValueRecord is the value of one attribute for one entity. It holds either a
// decoded scalar/container or a (value_id, value_type) reference pair,
// depending on the backend type of its column.
type ValueRecord struct {
	repo        *ValueRepository
	entity      hydra.Entity
	column      *VirtualColumn
	table       *BackendTable
	attributeID int64

	id *int64

	// raw is the value before type cast; for enumerated columns it is the
	// serialized literal.
	raw   any
	value any

	valueID   *int64
	valueType *string
	reference hydra.Entity

	snapshot        fieldSnapshot
	previousChanges map[string]Change
}

func newValueRecord(repo *ValueRepository, entity hydra.Entity, column *VirtualColumn, attrs hydra.ValueAttributes) (*ValueRecord, error) {
	table, err := repo.tables.Resolve(entity.Type().TableName, column.BackendType)
	if err != nil {
		return nil, err
	}
	rec := &ValueRecord{
		repo:            repo,
		entity:          entity,
		column:          column,
		table:           table,
		attributeID:     attrs.AttributeID,
		previousChanges: map[string]Change{},
	}
	if attrs.ID != nil {
		rec.id = int64Ptr(*attrs.ID)
	}
	if err := rec.initialize(attrs); err != nil {
		return nil, err
	}
	snapshot, err := rec.currentFields()
	if err != nil {
		return nil, err
	}
	rec.snapshot = snapshot
	return rec, nil
}

func (v *ValueRecord) initialize(attrs hydra.ValueAttributes) error {
	switch v.column.BackendType {
	case hydra.BackendTypeEnumerated:
		// Enumerated values never fall back to the column default.
		var input any
		if attrs.HasValue {
			input = attrs.Value
		}
		return v.assignEnumerated(input)
	case hydra.BackendTypePolymorphicReference:
		switch {
		case attrs.HasValue:
			if attrs.Value == nil {
				return nil
			}
			in, failure := ClassifyPolymorphicInput(attrs.Value)
			if failure != nil {
				failure.Attribute = v.column.Name
				return failure.AsError()
			}
			v.applyReference(in)
		default:
			if attrs.ValueID != nil && *attrs.ValueID != 0 {
				v.valueID = int64Ptr(*attrs.ValueID)
			}
			if attrs.ValueType != nil && *attrs.ValueType != "" {
				v.valueType = stringPtr(*attrs.ValueType)
			}
		}
		return nil
	case hydra.BackendTypeText, hydra.BackendTypeNumeric, hydra.BackendTypeDate:
		if attrs.HasValue {
			decoded, err := v.column.TypeCast(attrs.Value)
			if err != nil {
				return err
			}
			v.raw = attrs.Value
			v.value = decoded
			return nil
		}
		decoded, err := v.column.DefaultValue()
		if err != nil {
			return err
		}
		if v.column.Default != nil {
			v.raw = *v.column.Default
		}
		v.value = decoded
		return nil
	default:
		return hydra.NewUnsupportedBackendTypeError(string(v.column.BackendType))
	}
}

func (v *ValueRecord) assignEnumerated(input any) error {
	decoded, err := v.column.TypeCast(input)
	if err != nil {
		return err
	}
	if decoded == nil {
		v.raw, v.value = nil, nil
		return nil
	}
	encoded, err := v.column.Encode(decoded)
	if err != nil {
		return err
	}
	v.raw, v.value = encoded, decoded
	return nil
}

// Value returns the decoded value. Polymorphic references are loaded through
// the repository's resolver on first read.
func (v *ValueRecord) Value(ctx context.Context) (any, error) {
	switch v.column.BackendType {
	case hydra.BackendTypePolymorphicReference:
		return v.resolveReference(ctx)
	case hydra.BackendTypeEnumerated:
		if isContainer(v.value) {
			return v.value, nil
		}
		literal, ok := v.raw.(string)
		if !ok || literal == "" {
			return nil, nil
		}
		return parseLiteral(literal)
	case hydra.BackendTypeText, hydra.BackendTypeNumeric, hydra.BackendTypeDate:
		return v.value, nil
	default:
		return nil, hydra.NewUnsupportedBackendTypeError(string(v.column.BackendType))
	}
}

func (v *ValueRecord) resolveReference(ctx context.Context) (any, error) {
	if v.valueID == nil || v.valueType == nil || *v.valueType == "" {
		return nil, nil
	}
	if v.reference != nil {
		return v.reference, nil
	}
	if v.repo.references == nil {
		return nil, fmt.Errorf("reference resolver is not configured")
	}
	entity, err := v.repo.references.Resolve(ctx, *v.valueType, *v.valueID)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %d: %w", *v.valueType, *v.valueID, err)
	}
	v.reference = entity
	return entity, nil
}

// SetValue assigns a new value. Cast failures are returned as errors; a
// polymorphic input that cannot be classified is reported in the result and
// leaves the reference unchanged.
func (v *ValueRecord) SetValue(value any) (AssignResult, error) {
	switch v.column.BackendType {
	case hydra.BackendTypePolymorphicReference:
		in, failure := ClassifyPolymorphicInput(value)
		if failure != nil {
			failure.Attribute = v.column.Name
			zap.S().Warnw("unclassifiable polymorphic value ignored",
				"attribute", v.column.Name,
				"attribute_id", v.attributeID,
				"value_type", fmt.Sprintf("%T", value),
				"reason", failure.Reason)
			EmitClassificationFailure(context.Background(), v.column.Name)
			return AssignResult{Failure: failure}, nil
		}
		v.applyReference(in)
		return AssignResult{Applied: true}, nil
	case hydra.BackendTypeEnumerated:
		if err := v.assignEnumerated(value); err != nil {
			return AssignResult{}, err
		}
		return AssignResult{Applied: true}, nil
	case hydra.BackendTypeText, hydra.BackendTypeNumeric, hydra.BackendTypeDate:
		decoded, err := v.column.TypeCast(value)
		if err != nil {
			return AssignResult{}, err
		}
		v.raw, v.value = value, decoded
		return AssignResult{Applied: true}, nil
	default:
		return AssignResult{}, hydra.NewUnsupportedBackendTypeError(string(v.column.BackendType))
	}
}

// SetReference applies an already classified polymorphic input.
func (v *ValueRecord) SetReference(in PolymorphicInput) error {
	if !v.column.BackendType.IsPolymorphic() {
		return v.notPolymorphicError()
	}
	if in == nil {
		return fmt.Errorf("polymorphic input cannot be nil")
	}
	v.applyReference(in)
	return nil
}

func (v *ValueRecord) applyReference(in PolymorphicInput) {
	switch ref := in.(type) {
	case EntityInput:
		v.valueID = int64Ptr(ref.Entity.ID())
		v.valueType = stringPtr(ref.Entity.Type().Name)
		v.reference = ref.Entity
	case ReferenceIDInput:
		v.setReferenceID(ref.ID)
	case ReferenceTypeInput:
		v.setReferenceType(ref.Type)
	}
}

// setReferenceID stores id; zero means no association and clears the type too.
func (v *ValueRecord) setReferenceID(id int64) {
	if v.valueID != nil && *v.valueID == id {
		return
	}
	v.reference = nil
	if id == 0 {
		v.valueID = nil
		v.valueType = nil
		return
	}
	v.valueID = int64Ptr(id)
}

func (v *ValueRecord) setReferenceType(typeName string) {
	if v.valueType != nil && *v.valueType == typeName {
		return
	}
	v.reference = nil
	if typeName == "" {
		v.valueType = nil
		return
	}
	v.valueType = stringPtr(typeName)
}

// SetValueID sets the reference id from its numeric interpretation. nil,
// zero and strings that are not plain integers clear the association.
func (v *ValueRecord) SetValueID(value any) error {
	if !v.column.BackendType.IsPolymorphic() {
		return v.notPolymorphicError()
	}
	var id int64
	switch val := value.(type) {
	case nil:
	case string:
		id, _ = toInt64(val)
	default:
		n, ok := toInt64(val)
		if !ok {
			return hydra.NewTypeCastError(v.column.Name, v.column.BackendType, value)
		}
		id = n
	}
	if id < 0 {
		return hydra.NewTypeCastError(v.column.Name, v.column.BackendType, value)
	}
	v.setReferenceID(id)
	return nil
}

// SetValueType sets the reference type name; "" clears it.
func (v *ValueRecord) SetValueType(typeName string) error {
	if !v.column.BackendType.IsPolymorphic() {
		return v.notPolymorphicError()
	}
	v.setReferenceType(strings.TrimSpace(typeName))
	return nil
}

func (v *ValueRecord) notPolymorphicError() error {
	return hydra.NewHydraError(hydra.ErrorTypeValidation, hydra.ErrCodeUnsupportedBackendType,
		"reference fields are only available on polymorphic attributes").
		WithField(v.column.Name).
		WithDetail("backend_type", string(v.column.BackendType))
}

// Present reports whether the record holds a meaningful value: a non-zero
// number, a non-blank string or container, or a complete reference.
func (v *ValueRecord) Present() bool {
	switch v.column.BackendType {
	case hydra.BackendTypePolymorphicReference:
		return v.valueID != nil && *v.valueID != 0 && v.valueType != nil && !isBlank(*v.valueType)
	case hydra.BackendTypeNumeric:
		f, ok := v.value.(float64)
		return ok && f != 0
	default:
		return !isBlank(v.value)
	}
}

func (v *ValueRecord) RawValue() any {
	return v.raw
}

// ValueID returns the reference id, 0 when absent.
func (v *ValueRecord) ValueID() int64 {
	if v.valueID == nil {
		return 0
	}
	return *v.valueID
}

// ValueType returns the reference type name, "" when absent.
func (v *ValueRecord) ValueType() string {
	if v.valueType == nil {
		return ""
	}
	return *v.valueType
}

// ID returns the backend row id once the record has been saved or loaded.
func (v *ValueRecord) ID() (int64, bool) {
	if v.id == nil {
		return 0, false
	}
	return *v.id, true
}

func (v *ValueRecord) Persisted() bool {
	return v.id != nil
}

func (v *ValueRecord) AttributeID() int64 {
	return v.attributeID
}

func (v *ValueRecord) Column() *VirtualColumn {
	return v.column
}

func (v *ValueRecord) Table() *BackendTable {
	return v.table
}

func (v *ValueRecord) Entity() hydra.Entity {
	return v.entity
}

// currentFields renders the tracked fields in their persisted form.
func (v *ValueRecord) currentFields() (fieldSnapshot, error) {
	if v.column.BackendType.IsPolymorphic() {
		fields := fieldSnapshot{colValueID: nil, colValueType: nil}
		if v.valueID != nil {
			fields[colValueID] = *v.valueID
		}
		if v.valueType != nil {
			fields[colValueType] = *v.valueType
		}
		return fields, nil
	}
	encoded, err := v.column.Encode(v.value)
	if err != nil {
		return nil, err
	}
	return fieldSnapshot{colValue: encoded}, nil
}

// Changes returns the fields modified since the record was loaded or last saved.
func (v *ValueRecord) Changes() map[string]Change {
	current, err := v.currentFields()
	if err != nil {
		return map[string]Change{}
	}
	return v.snapshot.diff(current)
}

func (v *ValueRecord) Changed() bool {
	return len(v.Changes()) > 0
}

// PreviousChanges returns the changes written by the last successful save.
func (v *ValueRecord) PreviousChanges() map[string]Change {
	out := make(map[string]Change, len(v.previousChanges))
	for k, c := range v.previousChanges {
		out[k] = c
	}
	return out
}

// Save inserts or updates the backend row. It reports false without writing
// when the record is persisted and unchanged.
func (v *ValueRecord) Save(ctx context.Context) (bool, error) {
	if v.entity == nil || !v.entity.IsPersisted() {
		return false, v.notPersistedError()
	}
	current, err := v.currentFields()
	if err != nil {
		return false, err
	}
	changes := v.snapshot.diff(current)
	if v.Persisted() && len(changes) == 0 {
		return false, nil
	}

	now := v.repo.now()
	if v.Persisted() {
		changed := make(map[string]any, len(changes))
		for field := range changes {
			changed[field] = current[field]
		}
		query, args := v.table.updateStatement(*v.id, changed, now)
		if _, err := v.repo.pool.Exec(ctx, query, args...); err != nil {
			return false, fmt.Errorf("failed to update value row %d in %s: %w", *v.id, v.table.Name, err)
		}
		zap.S().Debugw("updated attribute value", "table", v.table.Name, "id", *v.id, "attribute_id", v.attributeID, "fields", len(changed))
	} else {
		values := make([]any, 0, 2)
		for _, column := range v.table.ValueColumns() {
			values = append(values, current[column])
		}
		query, args := v.table.insertStatement(v.entity.ID(), v.entity.Type().Discriminator(), v.attributeID, values, now)
		var id int64
		if err := v.repo.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			return false, fmt.Errorf("failed to insert value row into %s: %w", v.table.Name, err)
		}
		v.id = &id
		zap.S().Debugw("inserted attribute value", "table", v.table.Name, "id", id, "entity_id", v.entity.ID(), "attribute_id", v.attributeID)
	}

	v.previousChanges = changes
	v.snapshot = current.clone()
	return true, nil
}

func (v *ValueRecord) notPersistedError() error {
	name := ""
	if v.entity != nil {
		name = v.entity.Type().Name
	}
	return hydra.NewEntityNotPersistedError(name).WithDetail("attribute_id", v.attributeID)
}
