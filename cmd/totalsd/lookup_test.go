package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/VenkatGGG/taxa-totals/internal/config"
	"github.com/VenkatGGG/taxa-totals/internal/remote"
	"github.com/VenkatGGG/taxa-totals/internal/taxon"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Interval = 5 * time.Millisecond
	return cfg
}

func TestRunLookupPrintsSortedTotals(t *testing.T) {
	client := remote.NewStaticClient(map[taxon.ID]int64{3: 30, 1: 10, 2: 20})
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := runLookup(ctx, testConfig(), client, []taxon.ID{3, 1, 2, 3}, &out, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	require.Equal(t, "1\t10\n2\t20\n3\t30\n", out.String())
}

func TestRunLookupResolvesBeyondOneBatch(t *testing.T) {
	totals := make(map[taxon.ID]int64)
	ids := make([]taxon.ID, 0, 35)
	for id := taxon.ID(1); id <= 35; id++ {
		totals[id] = int64(id)
		ids = append(ids, id)
	}
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := runLookup(ctx, testConfig(), remote.NewStaticClient(totals), ids, &out, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	require.Equal(t, 35, bytes.Count(out.Bytes(), []byte("\n")))
}

func TestRunLookupReportsUnresolved(t *testing.T) {
	client := remote.NewStaticClient(map[taxon.ID]int64{1: 10})
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := runLookup(ctx, testConfig(), client, []taxon.ID{1, 2}, &out, log.New(io.Discard, "", 0))
	require.Error(t, err)
	require.Equal(t, "1\t10\n2\tpending\n", out.String())
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte("48662: 1234\n7: 0\n"), 0o600))

	client, err := loadFixture(path)
	require.NoError(t, err)
	got, err := client.FetchTotals(context.Background(), []taxon.ID{48662, 7, 9})
	require.NoError(t, err)
	require.Equal(t, map[taxon.ID]int64{48662: 1234, 7: 0}, got)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("-1: 5\n"), 0o600))
	_, err = loadFixture(bad)
	require.ErrorIs(t, err, taxon.ErrInvalidID)
}

func TestLookupCommandOffline(t *testing.T) {
	t.Setenv("TOTALS_STORE_BACKEND", "memory")
	t.Setenv("TOTALS_SHARED_THROTTLE", "false")
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte("5: 50\n"), 0o600))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"lookup", "5", "--offline", "--fixture", path, "--timeout", "2s"})
	require.NoError(t, cmd.Execute())
	require.Equal(t, "5\t50\n", out.String())
}

func TestLookupCommandRejectsBadID(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"lookup", "abc", "--offline"})
	require.ErrorIs(t, cmd.Execute(), taxon.ErrInvalidID)
}
