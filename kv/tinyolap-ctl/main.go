package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pingcap-incubator/tinyolap/kv/meta"
	"github.com/spf13/cobra"
)

type ctl struct {
	dbPath      string
	partitionID uint64
}

func main() {
	cobra.EnablePrefixMatching = true

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	c := &ctl{}
	rootCmd := &cobra.Command{
		Use:   "tinyolap-ctl",
		Short: "Inspect the tablet checkpoints of a stopped tinyolap server",
	}
	rootCmd.PersistentFlags().StringVar(&c.dbPath, "path", "/tmp/tinyolap", "directory path of checkpoints")

	rootCmd.AddCommand(
		c.newTabletsCommand(),
		c.newTabletCommand(),
	)
	return rootCmd
}

func (c *ctl) newTabletsCommand() *cobra.Command {
	m := &cobra.Command{
		Use:   "tablets",
		Short: "List the checkpointed tablets",
		Args:  cobra.NoArgs,
		RunE:  c.runTabletsCommandFunc,
	}
	m.Flags().Uint64Var(&c.partitionID, "partition", 0, "only list the tablets of this partition")
	return m
}

func (c *ctl) newTabletCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tablet <tablet-id>",
		Short: "Show the checkpointed rowsets of a tablet",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runTabletCommandFunc,
	}
}

func (c *ctl) openStore() (*meta.Store, error) {
	if _, err := os.Stat(c.dbPath); err != nil {
		return nil, fmt.Errorf("checkpoint directory %s: %v", c.dbPath, err)
	}
	engine, err := meta.OpenBadgerEngine(c.dbPath)
	if err != nil {
		return nil, err
	}
	return meta.NewStore(engine), nil
}

func (c *ctl) runTabletsCommandFunc(cmd *cobra.Command, args []string) error {
	store, err := c.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	metas, err := store.LoadTablets()
	if err != nil {
		return err
	}
	filter := cmd.Flags().Changed("partition")
	fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-12s %-12s %-8s\n", "TABLET", "PARTITION", "BASE", "ROWSETS")
	for _, m := range metas {
		if filter && m.PartitionID != c.partitionID {
			continue
		}
		rowsets, err := store.LoadRowsets(m.TabletID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-12d %-12d %-12d %-8d\n", m.TabletID, m.PartitionID, m.BaseVersion, len(rowsets))
	}
	return nil
}

func (c *ctl) runTabletCommandFunc(cmd *cobra.Command, args []string) error {
	tabletID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid tablet id %q", args[0])
	}
	store, err := c.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rowsets, err := store.LoadRowsets(tabletID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-12s %-12s %-10s %-16s\n", "VERSION", "ROWSET", "TXN", "SIZE", "FINGERPRINT")
	for _, vr := range rowsets {
		rs := vr.Rowset
		fmt.Fprintf(cmd.OutOrStdout(), "%-12d %-12d %-12d %-10d %016x\n", vr.Version, rs.ID, rs.TxnID, len(rs.Data), rs.Fingerprint())
	}
	return nil
}
