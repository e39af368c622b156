package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSecret_NotAFile(t *testing.T) {
	assert := assert.New(t)

	output, err := ReadSecret("hunter2", 0)
	assert.Nil(err)
	assert.Equal("hunter2", output)

	// directories are treated as literal values
	dir := t.TempDir()
	output, err = ReadSecret(dir, 0)
	assert.Nil(err)
	assert.Equal(dir, output)
}

func TestReadSecret_FromFile(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "pass.txt")
	require.Nil(os.WriteFile(path, []byte("something\n  somethingelse  \n"), 0600))

	output, err := ReadSecret(path, 0)
	assert.Nil(err)
	assert.Equal("something", output)

	output, err = ReadSecret(path, 1)
	assert.Nil(err)
	assert.Equal("somethingelse", output)

	output, err = ReadSecret(path, 2)
	assert.NotNil(err)
	assert.Equal(path, output)
}

func TestReadSecret_EmptyFile(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "empty.txt")
	require.Nil(os.WriteFile(path, nil, 0600))

	output, err := ReadSecret(path, 0)
	assert.NotNil(err)
	assert.Equal(path, output)
}
