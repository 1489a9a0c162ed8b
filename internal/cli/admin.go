package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
)

// NewMigrateCmd создаёт команду применения схемы БД.
func NewMigrateCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()
			defer env.Close()

			s, err := env.Session(cmd.Context())
			if err != nil {
				return err
			}
			if err := repo.Migrate(cmd.Context(), s.Pool()); err != nil {
				return err
			}
			if err := env.Settings.EnsureFolders(); err != nil {
				return err
			}

			outputFn().Success("Schema applied")
			return nil
		},
	}
}

// NewProjectCmd создаёт группу команд для управления проектами.
func NewProjectCmd(envFn func() *Env, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()
			defer env.Close()

			s, err := env.Session(cmd.Context())
			if err != nil {
				return err
			}
			p := &domain.Project{ID: uuid.New(), Name: args[0]}
			if err := s.Projects.Create(cmd.Context(), p); err != nil {
				return fmt.Errorf("create project: %w", err)
			}

			outputFn().Print(
				[]string{"ID", "NAME"},
				[][]string{{p.ID.String(), p.Name}},
				p,
			)
			return nil
		},
	})

	return cmd
}
