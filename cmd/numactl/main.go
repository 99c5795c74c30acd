// Command numactl is the launcher: it reads a YAML topology config, spawns
// and pins one numaworker process per node, forwards termination signals,
// and tears the pool down on exit.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fastllm-numa/numacore/config"
	"github.com/fastllm-numa/numacore/numapin"
)

var (
	topologyPath   string
	workerBinary   string
	describeTopo   bool
)

var rootCmd = &cobra.Command{
	Use:   "numactl",
	Short: "Launch and supervise a pool of NUMA worker processes",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logrus.New()

		if describeTopo {
			info := numapin.Diagnose()
			fmt.Printf("GOARCH=%s NumCPU=%d HasAVX2=%v HasAVX512F=%v HasNEON=%v HasSVE=%v\n",
				info.GOARCH, info.NumCPU, info.HasAVX2, info.HasAVX512F, info.HasNEON, info.HasSVE)
			return nil
		}

		topo, err := config.Load(topologyPath)
		if err != nil {
			return err
		}

		procs := make([]*exec.Cmd, 0, len(topo.Nodes))
		for _, node := range topo.Nodes {
			cpuArg := ""
			for i, c := range node.CPUs {
				if i > 0 {
					cpuArg += ","
				}
				cpuArg += strconv.Itoa(c)
			}
			cmdArgs := []string{
				"--part-id", strconv.Itoa(node.PartID),
				"--part-count", strconv.Itoa(topo.PartCount()),
				"--threads", strconv.Itoa(topo.ThreadsFor(node)),
				"--mailbox", topo.MailboxName,
				"--cpus", cpuArg,
			}
			c := exec.Command(workerBinary, cmdArgs...)
			c.Stdout, c.Stderr = os.Stdout, os.Stderr
			if err := c.Start(); err != nil {
				return fmt.Errorf("starting worker part_id=%d: %w", node.PartID, err)
			}
			log.WithFields(logrus.Fields{"part_id": node.PartID, "pid": c.Process.Pid}).Info("worker launched")
			procs = append(procs, c)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info("forwarding shutdown signal to worker pool")
		for _, c := range procs {
			c.Process.Signal(syscall.SIGTERM)
		}
		for _, c := range procs {
			c.Wait()
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&topologyPath, "topology", "topology.yaml", "path to the YAML topology config")
	rootCmd.Flags().StringVar(&workerBinary, "worker-binary", "numaworker", "path to the numaworker binary")
	rootCmd.Flags().BoolVar(&describeTopo, "describe-topology", false, "print detected CPU features and exit, without launching workers")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
