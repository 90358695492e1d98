package systemutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCmdExecEmptyCommand(t *testing.T) {
	_, err := CmdExec("", "", "")
	assert.Error(t, err)
}

func TestCmdExecOutput(t *testing.T) {
	out, err := CmdExec("echo hello", "", "")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestCmdExecWritesLog(t *testing.T) {
	dir, err := ioutil.TempDir("", "systemutil")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	logPath := filepath.Join(dir, "logs", "run.log")
	_, err = CmdExec("echo logged", "Running a test command", logPath)
	require.NoError(t, err)

	content, err := ioutil.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "##### Running a test command")
	assert.Contains(t, string(content), "logged")
}

func TestCmdExecPipefail(t *testing.T) {
	_, err := CmdExec("false | cat", "", "")
	assert.Error(t, err)
}

func TestCopyFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "systemutil")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "src.txt")
	require.NoError(t, ioutil.WriteFile(src, []byte("payload"), 0644))

	dst := filepath.Join(dir, "nested", "dst.txt")
	require.NoError(t, CopyFile(src, dst))

	content, err := ioutil.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}

func TestCopyFileRejectsDirectory(t *testing.T) {
	dir, err := ioutil.TempDir("", "systemutil")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	err = CopyFile(dir, filepath.Join(dir, "dst"))
	assert.Error(t, err)
}

func TestCopyDir(t *testing.T) {
	dir, err := ioutil.TempDir("", "systemutil")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(src, "a.png"), []byte("a"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(src, "sub", "b.png"), []byte("b"), 0644))

	dst := filepath.Join(dir, "out")
	require.NoError(t, CopyDir(src, dst))

	content, err := ioutil.ReadFile(filepath.Join(dst, "sub", "b.png"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(content))
}
