package schema

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/entitycore/internal/orm/annotations"
)

// blogModel builds Blog 1-* Post with an int key on each side
func blogModel(t *testing.T) (*Model, *EntityType, *EntityType, *ForeignKey) {
	t.Helper()
	m := NewModel()

	blog, err := m.AddEntityType("Blog")
	require.NoError(t, err)
	blogID, err := blog.AddProperty("Id", TypeInt, WithValueGenerated(ValueGeneratedOnAdd))
	require.NoError(t, err)
	_, err = blog.AddProperty("Name", TypeString, Nullable())
	require.NoError(t, err)
	blogKey, err := blog.SetPrimaryKey(blogID)
	require.NoError(t, err)

	post, err := m.AddEntityType("Post")
	require.NoError(t, err)
	postID, err := post.AddProperty("Id", TypeInt, WithValueGenerated(ValueGeneratedOnAdd))
	require.NoError(t, err)
	blogFK, err := post.AddProperty("BlogId", TypeInt)
	require.NoError(t, err)
	_, err = post.SetPrimaryKey(postID)
	require.NoError(t, err)

	fk, err := post.AddForeignKey([]*Property{blogFK}, blogKey, blog)
	require.NoError(t, err)
	_, err = fk.SetDependentToPrincipal("Blog")
	require.NoError(t, err)
	_, err = fk.SetPrincipalToDependent("Posts")
	require.NoError(t, err)

	return m, blog, post, fk
}

func TestModel_AddEntityType(t *testing.T) {
	m := NewModel()

	a, err := m.AddEntityType("A")
	require.NoError(t, err)
	assert.Equal(t, "A", a.Name())
	assert.False(t, a.IsShadow())
	assert.Same(t, a, m.FindEntityType("A"))

	_, err = m.AddEntityType("A")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateEntityType))
	assert.Equal(t, "The entity type 'A' cannot be added to the model because an entity type with the same name already exists.", err.Error())

	shadow, err := m.AddShadowEntityType("Bag")
	require.NoError(t, err)
	assert.True(t, shadow.IsShadow())
	assert.Nil(t, shadow.ClrType())
}

func TestModel_GetEntityTypesOrderedByName(t *testing.T) {
	m := NewModel()
	for _, name := range []string{"Zoo", "Apple", "Mango"} {
		_, err := m.AddEntityType(name)
		require.NoError(t, err)
	}

	var names []string
	for _, et := range m.GetEntityTypes() {
		names = append(names, et.Name())
	}
	assert.Equal(t, []string{"Apple", "Mango", "Zoo"}, names)
}

func TestModel_RemoveEntityType(t *testing.T) {
	m, blog, post, fk := blogModel(t)

	err := m.RemoveEntityType(blog)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEntityTypeInUse))
	assert.Contains(t, err.Error(), "'Blog'")

	require.NoError(t, m.RemoveEntityType(post))
	assert.Nil(t, m.FindEntityType("Post"))
	assert.Nil(t, fk.PrincipalToDependent())
	assert.Empty(t, blog.GetNavigations())

	require.NoError(t, m.RemoveEntityType(blog))
	assert.Empty(t, m.GetEntityTypes())
}

func TestModel_RemoveEntityTypeWithDerivedType(t *testing.T) {
	m := NewModel()
	base, err := m.AddEntityType("Animal")
	require.NoError(t, err)
	derived, err := m.AddEntityType("Cat")
	require.NoError(t, err)
	require.NoError(t, derived.HasBaseType(base))

	err = m.RemoveEntityType(base)
	assert.True(t, errors.Is(err, ErrEntityTypeInUse))

	require.NoError(t, m.RemoveEntityType(derived))
	assert.Empty(t, base.GetDerivedTypes())
	require.NoError(t, m.RemoveEntityType(base))
}

func TestModel_FinalizeMakesReadOnly(t *testing.T) {
	m, blog, post, fk := blogModel(t)

	require.NoError(t, m.Finalize(nil))
	assert.True(t, m.IsReadOnly())
	assert.True(t, m.IsFinalized())
	assert.Equal(t, ProductVersion, m.ProductVersion())

	_, err := m.AddEntityType("C")
	assert.True(t, IsReadOnly(err))

	_, err = blog.AddProperty("Title", TypeString)
	assert.True(t, IsReadOnly(err))

	err = fk.SetRequired(false)
	assert.True(t, IsReadOnly(err))

	_, err = post.AddAnnotation("Foo", 1, annotations.Explicit)
	assert.True(t, errors.Is(err, annotations.ErrReadOnly))

	// runtime annotations open after finalization
	_, err = post.AddRuntimeAnnotation("Compiled", true)
	assert.NoError(t, err)
}

func TestModel_FinalizePreservesShape(t *testing.T) {
	m, blog, post, _ := blogModel(t)
	before := m.ToDebugString()

	require.NoError(t, m.Finalize(nil))

	after := m.ToDebugString()
	assert.Contains(t, after, "ProductVersion: "+ProductVersion)
	assert.Equal(t, before, after[:len(before)])

	assert.Equal(t, []string{"Id", "Name"}, propertyNames(blog.GetProperties()))
	assert.Equal(t, []string{"Id", "BlogId"}, propertyNames(post.GetProperties()))
	assert.Equal(t, 0, post.FindProperty("Id").Index())
	assert.Equal(t, 1, post.FindProperty("BlogId").Index())
	assert.Equal(t, 2, post.PropertyCount())
	assert.Equal(t, 1, post.NavigationCount())
}

func TestModel_FinalizeRunsValidationOnce(t *testing.T) {
	m := NewModel()
	_, err := m.AddEntityType("A")
	require.NoError(t, err)

	var calls int
	var mu sync.Mutex
	validate := func(*Model) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("broken")
	}

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Finalize(validate)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	for _, err := range errs {
		assert.EqualError(t, err, "broken")
	}
	assert.False(t, m.IsReadOnly())
}

func propertyNames(properties []*Property) []string {
	names := make([]string, len(properties))
	for i, p := range properties {
		names[i] = p.Name()
	}
	return names
}
