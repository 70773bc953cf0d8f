package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"strings"
	"testing"

	"github.com/pingcap-incubator/tinyolap/kv/meta"
	"github.com/pingcap-incubator/tinyolap/kv/tablet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prepareCheckpoints(t *testing.T) string {
	dir, err := ioutil.TempDir("", "tinyolap-ctl")
	require.Nil(t, err)
	engine, err := meta.OpenBadgerEngine(dir)
	require.Nil(t, err)
	store := meta.NewStore(engine)
	require.Nil(t, store.SaveTablet(meta.TabletMeta{TabletID: 5, PartitionID: 1, BaseVersion: 2}, []tablet.VersionedRowset{
		{Version: 3, Rowset: tablet.NewRowset(1, 100, []byte("R1"))},
		{Version: 4, Rowset: tablet.NewRowset(3, 101, []byte("R3"))},
	}))
	require.Nil(t, store.SaveTablet(meta.TabletMeta{TabletID: 7, PartitionID: 2, BaseVersion: 2}, nil))
	require.Nil(t, store.Close())
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	cmd := newRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOutput(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTabletsCommand(t *testing.T) {
	dir := prepareCheckpoints(t)
	defer os.RemoveAll(dir)

	out, err := execute(t, "tablets", "--path", dir)
	require.Nil(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"5", "1", "2", "2"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"7", "2", "2", "0"}, strings.Fields(lines[2]))

	out, err = execute(t, "tablets", "--path", dir, "--partition", "2")
	require.Nil(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "7", strings.Fields(lines[1])[0])
}

func TestTabletCommand(t *testing.T) {
	dir := prepareCheckpoints(t)
	defer os.RemoveAll(dir)

	out, err := execute(t, "tablet", "5", "--path", dir)
	require.Nil(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"3", "1", "100", "2"}, strings.Fields(lines[1])[:4])
	assert.Equal(t, []string{"4", "3", "101", "2"}, strings.Fields(lines[2])[:4])

	_, err = execute(t, "tablet", "x", "--path", dir)
	assert.NotNil(t, err)
}

func TestMissingPath(t *testing.T) {
	_, err := execute(t, "tablets", "--path", "/nonexistent/tinyolap-ctl")
	assert.NotNil(t, err)
}
