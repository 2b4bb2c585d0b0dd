package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/syncbridge/internal/diff"
	"github.com/roach88/syncbridge/internal/snapshot"
)

// DiffView is the JSON form of a node diff.
type DiffView struct {
	Low     string        `json:"low"`
	High    string        `json:"high"`
	Batches [][]DiffEntry `json:"batches"`

	nd *diff.NodeDiff
}

// DiffEntry is one object's comparison.
type DiffEntry struct {
	ObjectID   string      `json:"object_id"`
	ObjectType string      `json:"object_type"`
	Status     diff.Status `json:"status"`
	Depth      int         `json:"depth"`
	Private    bool        `json:"private,omitempty"`
	LowDigest  string      `json:"low_digest,omitempty"`
	HighDigest string      `json:"high_digest,omitempty"`
}

func newDiffView(nd *diff.NodeDiff, batches []*diff.ObjectDiffBatch) DiffView {
	v := DiffView{
		Low:     nd.LowNodeName,
		High:    nd.HighNodeName,
		Batches: make([][]DiffEntry, len(batches)),
		nd:      &diff.NodeDiff{LowNodeName: nd.LowNodeName, HighNodeName: nd.HighNodeName, Batches: batches},
	}
	for i, b := range batches {
		entries := make([]DiffEntry, len(b.Diffs))
		for j, d := range b.Diffs {
			entries[j] = DiffEntry{
				ObjectID:   d.ObjectID,
				ObjectType: d.ObjectType,
				Status:     d.Status,
				Depth:      d.Depth(),
				Private:    d.HighObj != nil && d.HighObj.IsPrivatelyScoped(),
				LowDigest:  d.LowDigest,
				HighDigest: d.HighDigest,
			}
		}
		v.Batches[i] = entries
	}
	return v
}

func (v DiffView) String() string {
	return v.nd.String()
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	var changedOnly bool

	cmd := &cobra.Command{
		Use:   "diff <low.yaml> <high.yaml>",
		Short: "Compare two node snapshots",
		Long: `Compare the low and high snapshots and print the differences as batches
of dependency-connected objects. Each object is SAME, NEW, MODIFIED or
DELETED relative to the low side. The output is deterministic: the same
snapshots always print the same batches in the same order.

Exit codes:
  0 - Snapshots compared
  2 - A snapshot could not be read or failed validation`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			nd, err := loadDiff(f, args[0], args[1])
			if err != nil {
				return f.Fail(ExitCommandError, errorCode(err), "compare snapshots", err)
			}
			batches := nd.Batches
			if changedOnly {
				batches = nd.ChangedBatches()
			}
			return f.Success(newDiffView(nd, batches))
		},
	}
	cmd.Flags().BoolVar(&changedOnly, "changed", false, "omit batches where every object is SAME")
	return cmd
}

// loadDiff loads both snapshots and diffs them.
func loadDiff(f *OutputFormatter, lowPath, highPath string) (*diff.NodeDiff, error) {
	f.VerboseLog("loading %s", lowPath)
	low, err := snapshot.Load(lowPath)
	if err != nil {
		return nil, err
	}
	f.VerboseLog("loading %s", highPath)
	high, err := snapshot.Load(highPath)
	if err != nil {
		return nil, err
	}
	nd, err := diff.Compute(low, high)
	if err != nil {
		return nil, err
	}
	f.VerboseLog("%d batches, %d changed", len(nd.Batches), len(nd.ChangedBatches()))
	return nd, nil
}
