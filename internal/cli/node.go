package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
)

// NewNodeCmd создаёт группу команд для управления node.
func NewNodeCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Manage nodes",
	}

	cmd.AddCommand(
		newNodeStopCmd(envFn, outputFn),
		newNodeRemoveCmd(envFn, outputFn),
	)

	return cmd
}

func newNodeStopCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop ID",
		Short: "Stop a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("node id: %w", err)
			}

			env := envFn()
			defer env.Close()

			orch, err := env.Orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			status, err := orch.StopNode(cmd.Context(), id)
			if err != nil {
				return err
			}

			outputFn().Print(
				[]string{"ID", "STATUS"},
				[][]string{{id.String(), status.String()}},
				map[string]string{"id": id.String(), "status": status.String()},
			)
			return nil
		},
	}
}

func newNodeRemoveCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove the workspace of a node on every machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("node id: %w", err)
			}

			env := envFn()
			defer env.Close()

			orch, err := env.Orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			if err := orch.RemoveNode(cmd.Context(), id); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Removal of node %s requested", id))
			return nil
		},
	}
}

// NewDispatchCmd создаёт команду прямой отправки node на машину,
// в обход выбора контейнера оркестратором.
func NewDispatchCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	var machine, image string
	var repeat int

	cmd := &cobra.Command{
		Use:   "dispatch NODE_ID",
		Short: "Send a node to the worker queue of a machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("node id: %w", err)
			}

			env := envFn()
			defer env.Close()

			if machine == "" {
				machine = env.Settings.Hostname
			}
			if image == "" {
				image = env.Settings.DockerImage
			}

			s, err := env.Session(cmd.Context())
			if err != nil {
				return err
			}
			node, err := s.Nodes.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			if node.Status.IsTerminal() {
				return fmt.Errorf("node %s is already %s", id, node.Status)
			}

			node.ComputerAssigned = machine
			node.DockerAssigned = image
			node.Status = domain.NodeStatusQueued
			if err := s.Nodes.Update(cmd.Context(), node); err != nil {
				return err
			}

			pub, err := env.Publisher(cmd.Context())
			if err != nil {
				return err
			}
			queue := config.WorkerQueue(machine, image)
			if err := pub.PublishExecute(cmd.Context(), queue, id, repeat); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Node %s sent to %s", id, queue))
			return nil
		},
	}

	cmd.Flags().StringVar(&machine, "machine", "", "Target machine (default: this host)")
	cmd.Flags().StringVar(&image, "image", "", "Target docker image (default: DOCKER_IMG)")
	cmd.Flags().IntVar(&repeat, "repeat", 1, "Resubmissions after a failed library install")

	return cmd
}
