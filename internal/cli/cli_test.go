package cli

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validProgramSrc = `
bindings: [{
	name: "counter"
	expr: {
		kind:    "hold"
		initial: {kind: "int", value: 0}
		state:   "n"
		body: {
			kind:  "then"
			input: {kind: "link", alias: "increment.press"}
			body: {
				kind: "call"
				name: "add"
				args: [{kind: "var", name: "n"}, {kind: "int", value: 1}]
			}
		}
	}
}]
`

func writeProgram(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "program.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestValidateCommand_ValidProgram(t *testing.T) {
	path := writeProgram(t, validProgramSrc)
	assert.NoError(t, execute(t, "validate", path))
}

func TestValidateCommand_InvalidProgram(t *testing.T) {
	path := writeProgram(t, `bindings: [{name: "x", expr: {kind: "var", name: "ghost"}}]`)

	err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestValidateCommand_MissingFile(t *testing.T) {
	err := execute(t, "validate", "/nonexistent/program.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestValidateCommand_RequiresArgs(t *testing.T) {
	assert.Error(t, execute(t, "validate"))
}

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	path := writeProgram(t, validProgramSrc)
	err := execute(t, "validate", "--format", "xml", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestExitError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := WrapExitError(ExitCommandError, "open database", inner)

	assert.Equal(t, "open database: boom", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestOutputFormatter_JSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	err := f.Emit(map[string]int{"ticks": 3}, func(w io.Writer) error {
		t.Fatal("text renderer must not run in json mode")
		return nil
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ticks": 3}`, buf.String())
}

func TestOutputFormatter_Text(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	err := f.Emit(nil, func(w io.Writer) error {
		_, err := w.Write([]byte("3 ticks\n"))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "3 ticks\n", buf.String())
}

func TestIsValidFormat(t *testing.T) {
	for _, f := range ValidFormats {
		assert.True(t, isValidFormat(f))
	}
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}

func TestRunCommand_RequiresProgram(t *testing.T) {
	assert.Error(t, execute(t, "run"))
}

func TestReplayCommand_MissingDatabase(t *testing.T) {
	path := writeProgram(t, validProgramSrc)
	dbPath := filepath.Join(t.TempDir(), "absent", "weft.db")

	err := execute(t, "replay", path, "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateCommand_MultiplePrograms(t *testing.T) {
	good := writeProgram(t, validProgramSrc)
	bad := writeProgram(t, `bindings: []`)

	err := execute(t, "validate", good, bad)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "validation failed"))
}
