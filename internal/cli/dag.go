package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/graph"
)

// NewDagCmd создаёт группу команд для управления графами.
func NewDagCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag",
		Short: "Manage dags",
	}

	cmd.AddCommand(
		newDagStartCmd(envFn, outputFn),
		newDagPipeCmd(envFn, outputFn),
		newDagStopCmd(envFn, outputFn),
		newDagRemoveCmd(envFn, outputFn),
	)

	return cmd
}

// startFlags — флаги dag start.
type startFlags struct {
	debug    bool
	noUpload bool
	copyFrom string
	folder   string
}

// buildRequest читает описание из path и собирает запрос Graph Builder'а.
// Каталог проекта по умолчанию — каталог файла описания.
func buildRequest(path string, flags startFlags) (graph.BuildRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return graph.BuildRequest{}, fmt.Errorf("read %s: %w", path, err)
	}
	pipeline, err := engine.Parse(raw)
	if err != nil {
		return graph.BuildRequest{}, err
	}

	folder := flags.folder
	if folder == "" {
		folder = filepath.Dir(path)
	}

	req := graph.BuildRequest{
		Pipeline:     pipeline,
		Debug:        flags.debug,
		RawText:      string(raw),
		UploadFiles:  !flags.noUpload && flags.copyFrom == "",
		SourceFolder: folder,
	}
	if flags.copyFrom != "" {
		id, err := uuid.Parse(flags.copyFrom)
		if err != nil {
			return graph.BuildRequest{}, fmt.Errorf("--copy-from: %w", err)
		}
		req.CopyFrom = &id
	}
	return req, nil
}

func newDagStartCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	var flags startFlags

	cmd := &cobra.Command{
		Use:   "start FILE",
		Short: "Create a dag from a pipeline description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(args[0], flags)
			if err != nil {
				return err
			}

			env := envFn()
			defer env.Close()

			builder, err := env.Builder(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := builder.Build(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Dag %s created with %d nodes", req.Pipeline.Info.Name, len(ids)))
			out.Nodes(ids)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Run nodes from the project folder without materialization")
	cmd.Flags().BoolVar(&flags.noUpload, "no-upload", false, "Do not snapshot project files")
	cmd.Flags().StringVar(&flags.copyFrom, "copy-from", "", "Reuse the file tree of an existing dag")
	cmd.Flags().StringVar(&flags.folder, "folder", "", "Project folder (default: folder of FILE)")

	return cmd
}

func newDagPipeCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   "pipe FILE",
		Short: "Create a pipe dag and repoint project models to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			pipeline, err := engine.Parse(raw)
			if err != nil {
				return err
			}
			if folder == "" {
				folder = filepath.Dir(args[0])
			}

			env := envFn()
			defer env.Close()

			builder, err := env.Builder(cmd.Context())
			if err != nil {
				return err
			}
			g, err := builder.BuildPipe(cmd.Context(), graph.PipeRequest{
				Pipeline:     pipeline,
				RawText:      string(raw),
				SourceFolder: folder,
			})
			if err != nil {
				return err
			}

			outputFn().Print(
				[]string{"ID", "NAME", "KIND"},
				[][]string{{g.ID.String(), g.Name, g.Kind.String()}},
				g,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "Project folder (default: folder of FILE)")
	return cmd
}

func newDagStopCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop ID",
		Short: "Stop every node of a dag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("dag id: %w", err)
			}

			env := envFn()
			defer env.Close()

			orch, err := env.Orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			if err := orch.StopGraph(cmd.Context(), id); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Dag %s stopped", id))
			return nil
		},
	}
}

func newDagRemoveCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove node workspaces of a dag on every machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("dag id: %w", err)
			}

			env := envFn()
			defer env.Close()

			orch, err := env.Orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			if err := orch.RemoveGraph(cmd.Context(), id); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Removal of dag %s requested", id))
			return nil
		},
	}
}
