package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/entitycore/internal/orm/annotations"
	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/validation"
)

// libraryModel builds Author 1-* Book
func libraryModel(t *testing.T, version string) *schema.Model {
	t.Helper()
	m := schema.NewModel()
	if version != "" {
		_, err := m.SetOrOverrideAnnotation(schema.AnnotationProductVersion, version, annotations.Explicit)
		require.NoError(t, err)
	}

	author, err := m.AddEntityType("Author")
	require.NoError(t, err)
	authorID, err := author.AddProperty("Id", schema.TypeInt, schema.WithValueGenerated(schema.ValueGeneratedOnAdd))
	require.NoError(t, err)
	_, err = author.AddProperty("Name", schema.TypeString, schema.WithMaxLength(100))
	require.NoError(t, err)
	authorKey, err := author.SetPrimaryKey(authorID)
	require.NoError(t, err)

	book, err := m.AddEntityType("Book")
	require.NoError(t, err)
	bookID, err := book.AddProperty("Id", schema.TypeInt, schema.WithValueGenerated(schema.ValueGeneratedOnAdd))
	require.NoError(t, err)
	authorFK, err := book.AddShadowProperty("AuthorId", schema.TypeInt)
	require.NoError(t, err)
	_, err = book.SetPrimaryKey(bookID)
	require.NoError(t, err)
	fk, err := book.AddForeignKey([]*schema.Property{authorFK}, authorKey, author)
	require.NoError(t, err)
	_, err = fk.SetPrincipalToDependent("Books")
	require.NoError(t, err)

	require.NoError(t, author.HasData(map[string]interface{}{"Id": 1, "Name": "Le Guin"}))
	require.NoError(t, m.Finalize(validation.Validate))
	return m
}

func TestTake(t *testing.T) {
	m := libraryModel(t, "")
	s, err := Take(m, "library")
	require.NoError(t, err)

	assert.Equal(t, "library", s.Name)
	assert.Equal(t, schema.ProductVersion, s.ProductVersion)
	assert.NotEmpty(t, s.Fingerprint)
	assert.False(t, s.CreatedAt.IsZero())
	require.NotNil(t, s.Model.FindEntityType("Book"))

	_, err = Take(schema.NewModel(), "draft")
	require.ErrorIs(t, err, ErrNotFinalized)
	_, err = Take(m, "../escape")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestEncodeDecode(t *testing.T) {
	s, err := Take(libraryModel(t, ""), "library")
	require.NoError(t, err)
	data, err := s.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, s.Fingerprint, decoded.Fingerprint)
	assert.Equal(t, s.Model, decoded.Model)
	assert.True(t, s.CreatedAt.Equal(decoded.CreatedAt))

	decoded.Model.EntityTypes[0].Name = "Writer"
	assert.ErrorIs(t, decoded.Verify(), ErrCorrupt)

	_, err = Decode([]byte("name: x\n"))
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = Decode([]byte("name: ["))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		version   string
		current   string
		patchOnly bool
		wantErr   bool
	}{
		{"1.3.0", "1.3.0", false, false},
		{"1.3.2", "1.3.0", true, false},
		{"1.3.0", "1.3.7", true, false},
		{"1.2.9", "1.3.0", false, true},
		{"2.3.0", "1.3.0", false, true},
		{"", "1.3.0", false, true},
		{"not-a-version", "1.3.0", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.version+"_vs_"+tt.current, func(t *testing.T) {
			patchOnly, err := CheckVersion(tt.version, tt.current)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrIncompatibleVersion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.patchOnly, patchOnly)
		})
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "snapshots")
	store := NewFileStore(dir)
	assert.Equal(t, dir, store.Dir())

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	s, err := Take(libraryModel(t, ""), "library")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, s))
	other, err := Take(libraryModel(t, ""), "archive")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, other))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	names, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"archive", "library"}, names)

	loaded, err := store.Load(ctx, "library")
	require.NoError(t, err)
	assert.Equal(t, s.Model, loaded.Model)

	_, err = store.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Load(ctx, "a/b")
	require.ErrorIs(t, err, ErrInvalidName)

	require.NoError(t, store.Delete(ctx, "library"))
	require.NoError(t, store.Delete(ctx, "library"))
	_, err = store.Load(ctx, "library")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: ["), 0o600))
	_, err = store.Load(ctx, "broken")
	require.ErrorIs(t, err, ErrCorrupt)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, store.Save(cancelled, s), context.Canceled)
}

func TestLoader(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	s, err := Take(libraryModel(t, ""), "library")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, s))

	loader := NewLoader(store, "library", WithValidator(validation.Validate))
	m, err := loader.Model(ctx)
	require.NoError(t, err)
	assert.True(t, m.IsReadOnly())
	assert.Equal(t, schema.ProductVersion, m.ProductVersion())
	book := m.FindEntityType("Book")
	require.NotNil(t, book)
	assert.True(t, book.FindProperty("AuthorId").IsShadowProperty())
	assert.Equal(t, "Books", book.GetForeignKeys()[0].PrincipalToDependent().Name())

	again, err := loader.Model(ctx)
	require.NoError(t, err)
	assert.Same(t, m, again)
}

func TestLoader_PatchMismatchIsTolerated(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	s, err := Take(libraryModel(t, "1.3.9"), "library")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, s))

	core, logs := observer.New(zapcore.WarnLevel)
	loader := NewLoader(store, "library", WithProductVersion("1.3.0"), WithLogger(zap.New(core)))
	m, err := loader.Model(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.3.9", m.ProductVersion())

	warnings := logs.FilterMessage("snapshot was built by a different patch version").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "1.3.9", warnings[0].ContextMap()["snapshot_version"])
}

func TestLoader_MinorMismatchFailsOnFirstAccess(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	s, err := Take(libraryModel(t, "1.2.0"), "library")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, s))

	loader := NewLoader(store, "library", WithProductVersion("1.3.0"))
	_, err = loader.Model(ctx)
	require.ErrorIs(t, err, ErrIncompatibleVersion)
	assert.Contains(t, err.Error(), "product version 1.2.0 cannot be used with version 1.3.0")

	// the failure is remembered even after the snapshot is fixed
	fixed, err := Take(libraryModel(t, "1.3.0"), "library")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, fixed))
	_, err = loader.Model(ctx)
	require.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestLoader_MissingSnapshotIsRetried(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(t.TempDir())
	loader := NewLoader(store, "library")

	_, err := loader.Model(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	s, err := Take(libraryModel(t, ""), "library")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, s))
	m, err := loader.Model(ctx)
	require.NoError(t, err)
	assert.NotNil(t, m)
}
