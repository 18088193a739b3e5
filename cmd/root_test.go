package cmd

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/thread-harvester/internal/config"
)

func TestRootRegistersCrawl(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	crawl, _, err := root.Find([]string{"crawl"})
	require.NoError(t, err)
	require.Equal(t, "crawl", crawl.Name())
	for _, name := range []string{"max", "storage", "metrics-addr"} {
		require.NotNil(t, crawl.Flags().Lookup(name), name)
	}
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestCrawlRequiresSubject(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"crawl"})
	require.Error(t, root.Execute())
}

func TestCrawlRejectsInvalidConfig(t *testing.T) {
	t.Setenv("HARVESTER_REDDIT_CLIENT_ID", "")
	t.Setenv("HARVESTER_REDDIT_CLIENT_SECRET", "")

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"crawl", "golang", "--storage", "memory"})
	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "reddit.client_id")
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	opts := &rootOptions{v: config.NewViper()}
	crawl := newCrawlCmd(opts)
	require.NoError(t, crawl.ParseFlags([]string{"--max", "7", "--storage", "gcs"}))

	require.Equal(t, 7, opts.v.GetInt("crawl.max_records"))
	require.Equal(t, "gcs", opts.v.GetString("storage.backend"))
	require.Empty(t, opts.v.GetString("server.addr"))
	require.Equal(t, "25ms", opts.v.GetString("enrich.pace"), "unbound keys keep their defaults")
}
