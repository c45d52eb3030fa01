package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

const libraryDocument = `
name: library
entityTypes:
  - name: Author
    properties:
      - {name: Id, type: int, valueGenerated: on_add}
      - {name: Name, type: string, maxLength: 100}
    primaryKey: [Id]
  - name: Book
    properties:
      - {name: Id, type: int, valueGenerated: on_add}
      - {name: AuthorId, type: int, shadow: true}
      - {name: Title, type: string}
    primaryKey: [Id]
    foreignKeys:
      - properties: [AuthorId]
        principal: Author
        dependentToPrincipal: Author
        principalToDependent: Books
`

// workspace writes a model document and a config file into a temp dir and
// returns the config path
func workspace(t *testing.T, document, extraConfig string) string {
	t.Helper()
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "library.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte(document), 0o644))

	content := fmt.Sprintf(`model:
  name: library
  path: %s
logging:
  level: error
snapshot:
  dir: %s
%s`, modelPath, filepath.Join(dir, "snapshots"), extraConfig)
	configPath := filepath.Join(dir, "entitycore.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--no-color", "--config", configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "entitycore", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"version", "validate", "inspect", "snapshot"})

	for _, flag := range []string{"config", "model", "no-color", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	defer func() { Version, GitCommit = "dev", "unknown" }()

	out, err := run(t, workspace(t, libraryDocument, ""), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "entitycore version: 1.0.0-test")
	assert.Contains(t, out, "Product version: "+schema.ProductVersion)
	assert.Contains(t, out, "Git commit: abc123")
}

func TestValidateCommand(t *testing.T) {
	out, err := run(t, workspace(t, libraryDocument, ""), "validate")
	require.NoError(t, err)
	assert.Equal(t, "✓ model 'library' is valid (2 entity types)\n", out)
}

func TestValidateCommand_Violation(t *testing.T) {
	document := libraryDocument + `
  - name: Audit
    shadow: true
    properties:
      - {name: Id, type: int}
    primaryKey: [Id]
`
	out, err := run(t, workspace(t, document, ""), "validate")
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "✗ MODEL VALIDATION: ShadowEntities")
	assert.Contains(t, out, "The entity type 'Audit' is in shadow state.")
}

func TestValidateCommand_All(t *testing.T) {
	document := strings.Replace(libraryDocument, "{name: Title, type: string}", "{name: Pages, type: int, maxLength: 4}", 1)

	out, err := run(t, workspace(t, document, ""), "validate", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "SEVERITY")
	assert.Contains(t, out, "PropertyFacets")
	assert.Contains(t, out, "! model 'library' is valid with 1 warning(s)")

	escalated := workspace(t, document, "validation:\n  warnings_as_errors: [MaxLengthIgnored]\n")
	out, err = run(t, escalated, "validate", "--all")
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "✗ MODEL VALIDATION: 1 error(s), 0 warning(s)")

	_, err = run(t, escalated, "validate")
	require.ErrorIs(t, err, errReported)
}

func TestValidateCommand_MissingDocument(t *testing.T) {
	configPath := workspace(t, libraryDocument, "")
	_, err := run(t, configPath, "--model", filepath.Join(t.TempDir(), "missing.yaml"), "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "building model")
}

func TestInspectCommand(t *testing.T) {
	configPath := workspace(t, libraryDocument, "")

	out, err := run(t, configPath, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "Model library (product version "+schema.ProductVersion+")")
	assert.Contains(t, out, "ENTITY TYPE")
	assert.Contains(t, out, "Author")
	assert.Contains(t, out, "{'Id'}")

	out, err = run(t, configPath, "inspect", "Book")
	require.NoError(t, err)
	assert.Contains(t, out, "Entity type Book")
	assert.Contains(t, out, "Root type:")
	assert.Contains(t, out, "fk,shadow")
	assert.Contains(t, out, "Author.Books")
	assert.Contains(t, out, "cascade")

	out, err = run(t, configPath, "inspect", "--debug")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Model:\n"))
	assert.Contains(t, out, "EntityType: Book")
}

func TestInspectCommand_UnknownEntityType(t *testing.T) {
	out, err := run(t, workspace(t, libraryDocument, ""), "inspect", "Bok")
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "✗ UNKNOWN ENTITY TYPE: Bok")
	assert.Contains(t, out, "Did you mean: Book?")
}

func TestSnapshotCommands_FileStore(t *testing.T) {
	configPath := workspace(t, libraryDocument, "")

	out, err := run(t, configPath, "snapshot", "check")
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "✗ SNAPSHOT NOT FOUND: library")

	out, err = run(t, configPath, "snapshot", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no snapshots stored")

	out, err = run(t, configPath, "snapshot", "save")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ saved snapshot 'library' (product version "+schema.ProductVersion)
	snapshotFile := filepath.Join(filepath.Dir(configPath), "snapshots", "library.yaml")
	assert.FileExists(t, snapshotFile)

	_, err = run(t, configPath, "snapshot", "save", "archive")
	require.NoError(t, err)

	out, err = run(t, configPath, "snapshot", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ snapshot 'library' loads (product version "+schema.ProductVersion+", 2 entity types)")

	out, err = run(t, configPath, "snapshot", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "PRODUCT VERSION")
	assert.Less(t, strings.Index(out, "archive"), strings.Index(out, "library"))

	out, err = run(t, configPath, "snapshot", "delete", "archive")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ deleted snapshot 'archive'")
	out, err = run(t, configPath, "snapshot", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "archive")
}

func TestSnapshotCommands_IncompatibleVersion(t *testing.T) {
	document := strings.Replace(libraryDocument, "name: library\n", "name: library\nproductVersion: 0.1.0\n", 1)
	configPath := workspace(t, document, "")

	_, err := run(t, configPath, "snapshot", "save")
	require.NoError(t, err)

	out, err := run(t, configPath, "snapshot", "check")
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, out, "✗ INCOMPATIBLE SNAPSHOT: library")
	assert.Contains(t, out, "rebuild the snapshot")
}

func TestSnapshotCommands_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	configPath := workspace(t, libraryDocument, fmt.Sprintf("  store: redis\n  redis:\n    addr: %s\n", mr.Addr()))

	_, err := run(t, configPath, "snapshot", "save")
	require.NoError(t, err)
	assert.True(t, mr.Exists("entitycore:snapshot:library"))

	out, err := run(t, configPath, "snapshot", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ snapshot 'library' loads")
}

func TestExecute_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "entitycore.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("snapshot:\n  store: s3\n"), 0o644))

	_, err := run(t, configPath, "validate")
	require.Error(t, err)
	assert.Equal(t, "snapshot.store must be file or redis, got: s3", err.Error())
}

// syncBuffer is a bytes.Buffer safe for the watch goroutine and the test
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestValidateCommand_Watch(t *testing.T) {
	configPath := workspace(t, libraryDocument, "")
	modelPath := filepath.Join(filepath.Dir(configPath), "library.yaml")

	cmd := NewRootCommand()
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--no-color", "--config", configPath, "validate", "--watch"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "watching for changes")
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "✓ model 'library' is valid (2 entity types)")

	broken := libraryDocument + "  - name: Audit\n    shadow: true\n    properties:\n      - {name: Id, type: int}\n    primaryKey: [Id]\n"
	require.NoError(t, os.WriteFile(modelPath, []byte(broken), 0o644))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "✗ MODEL VALIDATION: ShadowEntities")
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "library.yaml changed")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
