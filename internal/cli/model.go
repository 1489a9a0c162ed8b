package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/graph"
)

// NewModelCmd создаёт группу команд для управления моделями.
func NewModelCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage models",
	}

	cmd.AddCommand(
		newModelAddCmd(envFn, outputFn),
		newModelStartCmd(envFn, outputFn),
	)

	return cmd
}

func newModelAddCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	var (
		task, dag string
		req       graph.ModelAttachRequest
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Attach the model of a training node to a pipe dag",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if req.Task, err = uuid.Parse(task); err != nil {
				return fmt.Errorf("--task: %w", err)
			}
			if req.Dag, err = uuid.Parse(dag); err != nil {
				return fmt.Errorf("--dag: %w", err)
			}

			env := envFn()
			defer env.Close()

			builder, err := env.Builder(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := builder.AttachModel(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Model %s is being added", req.Name))
			out.Nodes(ids)
			return nil
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "Training node ID")
	cmd.Flags().StringVar(&dag, "dag", "", "Pipe dag ID")
	cmd.Flags().StringVar(&req.Name, "name", "", "Model name")
	cmd.Flags().StringVar(&req.Slot, "slot", "", "Pipe slot")
	cmd.Flags().StringVar(&req.Interface, "interface", "", "Model interface")
	cmd.Flags().StringVar(&req.InterfaceParams, "params", "", "Interface params (YAML)")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("dag")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newModelStartCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	var (
		model, dag string
		req        graph.ModelStartRequest
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run a pipe of a pipe dag with the model in its slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if req.ModelID, err = uuid.Parse(model); err != nil {
				return fmt.Errorf("--model: %w", err)
			}
			if req.Dag, err = uuid.Parse(dag); err != nil {
				return fmt.Errorf("--dag: %w", err)
			}

			env := envFn()
			defer env.Close()

			builder, err := env.Builder(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := builder.StartModel(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Pipe %s started", req.Pipe))
			out.Nodes(ids)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Model ID")
	cmd.Flags().StringVar(&dag, "dag", "", "Pipe dag ID")
	cmd.Flags().StringVar(&req.Pipe, "pipe", "", "Pipe name")
	cmd.Flags().StringVar(&req.Slot, "slot", "", "Pipe slot")
	cmd.Flags().StringVar(&req.Interface, "interface", "", "Model interface")
	cmd.Flags().StringVar(&req.InterfaceParams, "params", "", "Interface params (YAML)")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("dag")
	_ = cmd.MarkFlagRequired("pipe")

	return cmd
}
