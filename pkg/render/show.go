package render

import (
	"fmt"
	"io"
	"sort"

	"github.com/modoterra/ptail/pkg/core"
)

// ProcessLogs is one target process and the logs it holds open.
type ProcessLogs struct {
	Process core.TargetProcess
	Logs    []string
}

// WriteShow prints the processes that hold logs, sorted by display name.
func WriteShow(w io.Writer, procs []ProcessLogs) error {
	sorted := make([]ProcessLogs, 0, len(procs))
	for _, p := range procs {
		if len(p.Logs) > 0 {
			sorted = append(sorted, p)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Process.Name != sorted[j].Process.Name {
			return sorted[i].Process.Name < sorted[j].Process.Name
		}
		return sorted[i].Process.PID < sorted[j].Process.PID
	})

	for _, p := range sorted {
		logs := append([]string(nil), p.Logs...)
		sort.Strings(logs)
		if _, err := fmt.Fprintf(w, "\n%s:\n\tPID: %d\n\tCOMMAND LINE: %s\n\tLOGS:\n", p.Process.Name, p.Process.PID, p.Process.Cmdline); err != nil {
			return err
		}
		for _, l := range logs {
			if _, err := fmt.Fprintf(w, "\t\t%s\n", l); err != nil {
				return err
			}
		}
	}
	return nil
}
