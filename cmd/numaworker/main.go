// Command numaworker is the per-NUMA-node worker entrypoint: it maps the
// shared mailbox, pins itself to its assigned CPU set, and runs the
// dispatch loop until the parent process dies.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fastllm-numa/numacore/numapin"
	"github.com/fastllm-numa/numacore/server"
	"github.com/fastllm-numa/numacore/shm"
)

var (
	partID      int
	partCount   int
	threads     int
	numaNode    int
	mailboxName string
	cpuList     []int
)

var rootCmd = &cobra.Command{
	Use:   "numaworker",
	Short: "Run one NUMA-node worker process against the shared mailbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logrus.New()

		if len(cpuList) > 0 {
			if err := numapin.Pin(cpuList); err != nil {
				return err
			}
		}

		region, err := shm.Open(mailboxName)
		if err != nil {
			return err
		}

		s := server.New(partID, partCount, threads, region, log)
		log.WithFields(logrus.Fields{
			"part_id":    partID,
			"part_count": partCount,
			"threads":    threads,
			"numa_node":  numaNode,
			"mailbox":    mailboxName,
		}).Info("worker starting")

		return s.Run()
	},
}

func init() {
	rootCmd.Flags().IntVar(&partID, "part-id", 0, "this worker's partition index")
	rootCmd.Flags().IntVar(&partCount, "part-count", 1, "total number of worker partitions")
	rootCmd.Flags().IntVar(&threads, "threads", 1, "thread pool size for this worker")
	rootCmd.Flags().IntVar(&numaNode, "numa-node", 0, "NUMA node this worker is assigned to (diagnostic only)")
	rootCmd.Flags().IntSliceVar(&cpuList, "cpus", nil, "CPU ids to pin this worker to")
	rootCmd.Flags().StringVar(&mailboxName, "mailbox", "fastllm_shm", "shared-memory mailbox name under /dev/shm")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
