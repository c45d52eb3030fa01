// Package memory provides an in-process storage.Store. Batches are applied to
// a copy of the tables and swapped in only when every command and constraint
// check succeeds.
package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/storage"
)

// Store keeps one table per entity type hierarchy
type Store struct {
	mu       sync.RWMutex
	model    *schema.Model
	tables   map[*schema.EntityType]*table
	sequence int64
	version  int64
	logger   *zap.Logger
}

type table struct {
	rows  map[string]storage.Row
	order []string
}

func (t *table) clone() *table {
	rows := make(map[string]storage.Row, len(t.rows))
	for k, v := range t.rows {
		rows[k] = v
	}
	return &table{rows: rows, order: append([]string(nil), t.order...)}
}

func (t *table) put(key string, row storage.Row) {
	if _, exists := t.rows[key]; !exists {
		t.order = append(t.order, key)
	}
	t.rows[key] = row
}

func (t *table) remove(key string) {
	delete(t.rows, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the store logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty store for the entity types of m
func New(m *schema.Model, opts ...Option) *Store {
	s := &Store{
		model:  m,
		tables: make(map[*schema.EntityType]*table),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save applies commands in order. Either all commands are applied or none.
func (s *Store) Save(ctx context.Context, commands []storage.Command) ([]storage.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.begin()
	results := make([]storage.Result, len(commands))
	for i := range commands {
		values, err := tx.apply(i, &commands[i])
		if err != nil {
			return nil, &storage.CommandError{Index: i, Command: &commands[i], Err: err}
		}
		results[i] = storage.Result{Values: values}
	}
	if err := tx.checkForeignKeys(commands); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.tables = tx.tables
	s.sequence = tx.sequence
	s.version = tx.version
	s.logger.Debug("batch applied", zap.Int("commands", len(commands)))
	return results, nil
}

// Rows returns the stored rows whose type is et or derives from it, in insertion order
func (s *Store) Rows(ctx context.Context, et *schema.EntityType) ([]storage.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.model.FindEntityType(et.Name()) != et {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownEntityType, et.Name())
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.tables[et.RootType()]
	if t == nil {
		return nil, nil
	}
	rows := make([]storage.Row, 0, len(t.order))
	for _, key := range t.order {
		row := t.rows[key]
		rowType := s.model.FindEntityType(fmt.Sprint(row[storage.TypeColumn]))
		if rowType == nil || !rowType.IsAssignableTo(et) {
			continue
		}
		rows = append(rows, copyRow(row))
	}
	return rows, nil
}

// Count returns the number of rows stored for et and its derived types
func (s *Store) Count(et *schema.EntityType) int {
	rows, err := s.Rows(context.Background(), et)
	if err != nil {
		return 0
	}
	return len(rows)
}

// EnsureSeeded inserts the seed data declared on the model
func (s *Store) EnsureSeeded(ctx context.Context) error {
	var commands []storage.Command
	for _, et := range s.model.GetEntityTypes() {
		for _, seed := range et.GetSeedData() {
			seedType := s.model.FindEntityType(seed.TypeName)
			if seedType == nil {
				return fmt.Errorf("%w: %s", storage.ErrUnknownEntityType, seed.TypeName)
			}
			values := make(map[string]interface{}, len(seed.Values))
			for _, p := range seedType.GetProperties() {
				values[p.Name()] = seed.Values[p.Name()]
			}
			commands = append(commands, storage.Command{
				EntityType: seedType,
				Operation:  storage.OpInsert,
				Values:     values,
			})
		}
	}
	if len(commands) == 0 {
		return nil
	}
	_, err := s.Save(ctx, commands)
	return err
}

type transaction struct {
	model    *schema.Model
	tables   map[*schema.EntityType]*table
	sequence int64
	version  int64

	// temporary placeholder values replaced during this batch, per principal property
	temps map[*schema.Property]map[string]interface{}

	// row keys written and rows deleted, by command index
	written map[int]string
	deleted map[int]storage.Row
}

func (s *Store) begin() *transaction {
	tables := make(map[*schema.EntityType]*table, len(s.tables))
	for et, t := range s.tables {
		tables[et] = t.clone()
	}
	return &transaction{
		model:    s.model,
		tables:   tables,
		sequence: s.sequence,
		version:  s.version,
		temps:    make(map[*schema.Property]map[string]interface{}),
		written:  make(map[int]string),
		deleted:  make(map[int]storage.Row),
	}
}

func (tx *transaction) table(et *schema.EntityType) *table {
	root := et.RootType()
	t := tx.tables[root]
	if t == nil {
		t = &table{rows: make(map[string]storage.Row)}
		tx.tables[root] = t
	}
	return t
}

func (tx *transaction) apply(index int, cmd *storage.Command) (map[string]interface{}, error) {
	et := cmd.EntityType
	if et == nil || tx.model.FindEntityType(et.Name()) != et {
		return nil, storage.ErrUnknownEntityType
	}
	switch cmd.Operation {
	case storage.OpInsert:
		return tx.insert(index, cmd)
	case storage.OpUpdate:
		return tx.update(index, cmd)
	case storage.OpDelete:
		return nil, tx.delete(index, cmd)
	default:
		return nil, fmt.Errorf("unsupported operation %d", cmd.Operation)
	}
}

func (tx *transaction) insert(index int, cmd *storage.Command) (map[string]interface{}, error) {
	et := cmd.EntityType
	row := copyRow(cmd.Values)
	row[storage.TypeColumn] = et.Name()
	generated := tx.resolveForeignKeys(et, row)

	temporary := make(map[string]bool, len(cmd.TemporaryProperties))
	for _, name := range cmd.TemporaryProperties {
		temporary[name] = true
	}
	for _, p := range et.GetProperties() {
		if _, ok := generated[p.Name()]; ok {
			continue
		}
		current := row[p.Name()]
		if !temporary[p.Name()] && !(p.ValueGenerated().OnAdd() && schema.IsDefaultValue(current)) {
			if p.ValueGenerated().OnAdd() && p.Type().IsInteger() {
				tx.advanceSequence(current)
			}
			continue
		}
		value, ok := tx.generate(p, current)
		if !ok {
			continue
		}
		if temporary[p.Name()] {
			tx.recordTemporary(p, current, value)
		}
		row[p.Name()] = value
		generated[p.Name()] = value
	}

	t := tx.table(et)
	key, err := tx.rowKey(et, row, len(t.order))
	if err != nil {
		return nil, err
	}
	if _, exists := t.rows[key]; exists {
		return nil, fmt.Errorf("%w: %s", storage.ErrDuplicateKey, describeKey(et.RootType().FindPrimaryKey(), row))
	}
	if err := tx.checkAlternateKeys(et, row, ""); err != nil {
		return nil, err
	}
	t.put(key, row)
	tx.written[index] = key
	return generated, nil
}

func (tx *transaction) update(index int, cmd *storage.Command) (map[string]interface{}, error) {
	et := cmd.EntityType
	t := tx.table(et)
	key, existing, err := tx.findOriginal(cmd, t)
	if err != nil {
		return nil, err
	}

	values := copyRow(cmd.Values)
	generated := tx.resolveForeignKeys(et, values)
	row := copyRow(existing)
	for _, name := range cmd.ModifiedProperties {
		row[name] = values[name]
	}
	for name, value := range generated {
		row[name] = value
	}
	for _, p := range et.GetProperties() {
		if !p.ValueGenerated().OnUpdate() {
			continue
		}
		if value, ok := tx.generate(p, row[p.Name()]); ok {
			row[p.Name()] = value
			generated[p.Name()] = value
		}
	}
	row[storage.TypeColumn] = et.Name()

	if err := tx.checkAlternateKeys(et, row, key); err != nil {
		return nil, err
	}
	t.put(key, row)
	tx.written[index] = key
	return generated, nil
}

func (tx *transaction) delete(index int, cmd *storage.Command) error {
	t := tx.table(cmd.EntityType)
	key, existing, err := tx.findOriginal(cmd, t)
	if err != nil {
		return err
	}
	t.remove(key)
	tx.deleted[index] = existing
	return nil
}

// findOriginal locates the row a command was read from and checks its concurrency tokens
func (tx *transaction) findOriginal(cmd *storage.Command, t *table) (string, storage.Row, error) {
	et := cmd.EntityType
	original := cmd.OriginalValues
	if original == nil {
		original = cmd.Values
	}
	key, err := tx.rowKey(et, original, -1)
	if err != nil {
		return "", nil, err
	}
	existing, ok := t.rows[key]
	if !ok {
		return "", nil, storage.ErrConcurrencyConflict
	}
	for _, p := range et.GetProperties() {
		if !p.IsConcurrencyToken() {
			continue
		}
		if !p.Comparer().Equals(existing[p.Name()], original[p.Name()]) {
			return "", nil, storage.ErrConcurrencyConflict
		}
	}
	return key, existing, nil
}

// resolveForeignKeys replaces foreign key values that point at placeholder
// principal keys generated earlier in the batch
func (tx *transaction) resolveForeignKeys(et *schema.EntityType, row storage.Row) map[string]interface{} {
	resolved := make(map[string]interface{})
	for _, fk := range et.GetForeignKeys() {
		principal := fk.PrincipalKey().Properties()
		for i, p := range fk.Properties() {
			replacements := tx.temps[principal[i]]
			if replacements == nil {
				continue
			}
			if value, ok := replacements[valueKey(row[p.Name()])]; ok {
				row[p.Name()] = value
				resolved[p.Name()] = value
			}
		}
	}
	return resolved
}

func (tx *transaction) recordTemporary(p *schema.Property, placeholder, value interface{}) {
	if tx.temps[p] == nil {
		tx.temps[p] = make(map[string]interface{})
	}
	tx.temps[p][valueKey(placeholder)] = value
}

// generate produces a store value for p; ok is false when the type has no generator
func (tx *transaction) generate(p *schema.Property, current interface{}) (interface{}, bool) {
	if p.IsConcurrencyToken() {
		tx.version++
		if p.Type() == schema.TypeBytes {
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(tx.version))
			return buf, true
		}
		return sequenceValue(tx.version, current), true
	}

	switch {
	case p.Type() == schema.TypeUUID:
		if _, ok := current.(string); ok {
			return uuid.NewString(), true
		}
		return uuid.New(), true
	case p.Type().IsText():
		return uuid.NewString(), true
	case p.Type().IsInteger():
		tx.sequence++
		return sequenceValue(tx.sequence, current), true
	case p.Type() == schema.TypeTimestamp:
		return time.Now().UTC(), true
	default:
		return nil, false
	}
}

// advanceSequence keeps generated integers above explicitly inserted ones
func (tx *transaction) advanceSequence(v interface{}) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	default:
		return
	}
	if n > tx.sequence {
		tx.sequence = n
	}
}

func (tx *transaction) rowKey(et *schema.EntityType, values map[string]interface{}, position int) (string, error) {
	pk := et.RootType().FindPrimaryKey()
	if pk == nil {
		// keyless rows are only ever inserted
		if position < 0 {
			return "", fmt.Errorf("%w: '%s' is keyless", storage.ErrConcurrencyConflict, et.DisplayName())
		}
		return fmt.Sprintf("#%d", position), nil
	}
	return keyString(pk.Properties(), values), nil
}

func (tx *transaction) checkAlternateKeys(et *schema.EntityType, row storage.Row, self string) error {
	t := tx.table(et)
	for _, key := range et.RootType().GetKeys() {
		if key.IsPrimaryKey() {
			continue
		}
		candidate := keyString(key.Properties(), row)
		for rowKey, other := range t.rows {
			if rowKey == self {
				continue
			}
			if keyString(key.Properties(), other) == candidate {
				return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, describeKey(key, row))
			}
		}
	}
	return nil
}

// checkForeignKeys verifies the tables after the whole batch has been applied
func (tx *transaction) checkForeignKeys(commands []storage.Command) error {
	for i := range commands {
		cmd := &commands[i]
		if cmd.Operation == storage.OpDelete {
			continue
		}
		row := tx.table(cmd.EntityType).rows[tx.written[i]]
		if row == nil {
			continue
		}
		for _, fk := range cmd.EntityType.GetForeignKeys() {
			values, ok := foreignKeyValues(fk, row)
			if !ok {
				continue
			}
			if tx.findPrincipal(fk, values) == nil {
				return &storage.CommandError{Index: i, Command: cmd, Err: fmt.Errorf("%w: %s on '%s' has no matching '%s'",
					storage.ErrForeignKeyViolation, schema.FormatProperties(fk.Properties()),
					cmd.EntityType.DisplayName(), fk.PrincipalEntityType().DisplayName())}
			}
		}
	}

	for i := range commands {
		cmd := &commands[i]
		if cmd.Operation != storage.OpDelete {
			continue
		}
		deleted := tx.deleted[i]
		if deleted == nil {
			continue
		}
		for _, fk := range cmd.EntityType.GetReferencingForeignKeys() {
			principalValues := make([]interface{}, 0, len(fk.PrincipalKey().Properties()))
			for _, p := range fk.PrincipalKey().Properties() {
				principalValues = append(principalValues, deleted[p.Name()])
			}
			if tx.findPrincipal(fk, principalValues) != nil {
				// replaced within the batch
				continue
			}
			if dependent := tx.findDependent(fk, principalValues); dependent != nil {
				return &storage.CommandError{Index: i, Command: cmd, Err: fmt.Errorf("%w: '%s' is still referenced by '%s'",
					storage.ErrForeignKeyViolation, cmd.EntityType.DisplayName(), fk.DeclaringEntityType().DisplayName())}
			}
		}
	}
	return nil
}

func (tx *transaction) findPrincipal(fk *schema.ForeignKey, values []interface{}) storage.Row {
	t := tx.tables[fk.PrincipalEntityType().RootType()]
	if t == nil {
		return nil
	}
	props := fk.PrincipalKey().Properties()
	if fk.PrincipalKey().IsPrimaryKey() {
		lookup := make(map[string]interface{}, len(props))
		for i, p := range props {
			lookup[p.Name()] = values[i]
		}
		row := t.rows[keyString(props, lookup)]
		if row != nil && tx.rowIs(row, fk.PrincipalEntityType()) {
			return row
		}
		return nil
	}
	for _, key := range t.order {
		row := t.rows[key]
		if tx.rowIs(row, fk.PrincipalEntityType()) && rowMatches(props, row, values) {
			return row
		}
	}
	return nil
}

func (tx *transaction) findDependent(fk *schema.ForeignKey, values []interface{}) storage.Row {
	t := tx.tables[fk.DeclaringEntityType().RootType()]
	if t == nil {
		return nil
	}
	for _, key := range t.order {
		row := t.rows[key]
		if tx.rowIs(row, fk.DeclaringEntityType()) && rowMatches(fk.Properties(), row, values) {
			return row
		}
	}
	return nil
}

func (tx *transaction) rowIs(row storage.Row, et *schema.EntityType) bool {
	rowType := tx.model.FindEntityType(fmt.Sprint(row[storage.TypeColumn]))
	return rowType != nil && rowType.IsAssignableTo(et)
}

func rowMatches(props []*schema.Property, row storage.Row, values []interface{}) bool {
	for i, p := range props {
		if !p.Comparer().Equals(row[p.Name()], values[i]) {
			return false
		}
	}
	return true
}

func foreignKeyValues(fk *schema.ForeignKey, row storage.Row) ([]interface{}, bool) {
	values := make([]interface{}, 0, len(fk.Properties()))
	for _, p := range fk.Properties() {
		v := row[p.Name()]
		if v == nil {
			return nil, false
		}
		values = append(values, v)
	}
	return values, true
}

func keyString(props []*schema.Property, values map[string]interface{}) string {
	parts := make([]string, len(props))
	for i, p := range props {
		parts[i] = valueKey(values[p.Name()])
	}
	return strings.Join(parts, "|")
}

func valueKey(v interface{}) string {
	return fmt.Sprintf("%T:%v", v, v)
}

func describeKey(key *schema.Key, row storage.Row) string {
	if key == nil {
		return "{}"
	}
	parts := make([]string, len(key.Properties()))
	for i, p := range key.Properties() {
		parts[i] = fmt.Sprintf("%s: %v", p.Name(), row[p.Name()])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// sequenceValue converts n to the integer type of like
func sequenceValue(n int64, like interface{}) interface{} {
	switch like.(type) {
	case int:
		return int(n)
	case int32:
		return int32(n)
	case int16:
		return int16(n)
	case uint:
		return uint(n)
	case uint32:
		return uint32(n)
	case uint64:
		return uint64(n)
	default:
		return n
	}
}

func copyRow(values map[string]interface{}) storage.Row {
	row := make(storage.Row, len(values)+1)
	for k, v := range values {
		row[k] = v
	}
	return row
}
