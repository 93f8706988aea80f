package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bryanchriswhite/DualCam/internal/camera"
	"github.com/bryanchriswhite/DualCam/internal/snapshot"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage stored snapshots",
	Long:  `List raw NV12 snapshots and convert them to PNG.`,
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	Example: `  # List snapshots in table format (default)
  dualcam snapshots list

  # List snapshots in JSON format
  dualcam snapshots list --format json`,
	RunE: runSnapshotsList,
}

var snapshotsConvertCmd = &cobra.Command{
	Use:   "convert NAME",
	Short: "Convert a snapshot to PNG",
	Long: `Convert a raw NV12 snapshot to PNG. The output defaults to the snapshot
name with a .png extension in the current directory.`,
	Example: `  # Convert into ./IMG-2024-05-01-10-00-00.000.png
  dualcam snapshots convert IMG-2024-05-01-10-00-00.000.nv12

  # Convert to a chosen file
  dualcam snapshots convert IMG-2024-05-01-10-00-00.000.nv12 -o still.png`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshotsConvert,
}

var (
	snapshotsFormat string
	convertOutput   string
)

func init() {
	rootCmd.AddCommand(snapshotsCmd)
	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsConvertCmd)

	snapshotsListCmd.Flags().StringVarP(&snapshotsFormat, "format", "f", "table", "output format (table or json)")
	snapshotsConvertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output PNG file")
}

func openStore(cmd *cobra.Command) (*snapshot.Store, error) {
	configMgr, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg := configMgr.Get()
	layout := camera.Layout{Width: cfg.Stream.Width, Height: cfg.Stream.Height, Pitch: cfg.Stream.Pitch}
	return snapshot.NewStore(afero.NewOsFs(), cfg.Snapshot.Dir, layout)
}

func runSnapshotsList(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	recs, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	switch snapshotsFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(recs)
	case "table":
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", snapshotsFormat)
	}

	if len(recs) == 0 {
		fmt.Printf("No snapshots in %s\n", store.Dir())
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tTAKEN")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%d\t%s\n", r.Name, r.Size, r.CreatedAt.Format("2006-01-02 15:04:05.000"))
	}
	w.Flush()
	fmt.Printf("\n%d snapshot(s) in %s\n", len(recs), store.Dir())
	return nil
}

func runSnapshotsConvert(cmd *cobra.Command, args []string) error {
	name := args[0]
	store, err := openStore(cmd)
	if err != nil {
		return err
	}

	out := convertOutput
	if out == "" {
		out = strings.TrimSuffix(name, ".nv12") + ".png"
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}

	if err := store.ConvertPNG(name, f); err != nil {
		f.Close()
		os.Remove(out)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Printf("Wrote %s\n", out)
	return nil
}
