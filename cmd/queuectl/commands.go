package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-queue/internal/app"
	"github.com/jwalitptl/clinic-queue/internal/config"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/pkg/auth"
)

// withApp loads configuration, builds the application and runs fn with it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, actor string) error) error {
	var paths []string
	if dir, _ := cmd.Flags().GetString("config"); dir != "" {
		paths = append(paths, dir)
	}
	cfg, err := config.LoadConfig(paths...)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, app.NewLogger(cfg.Log))
	if err != nil {
		return err
	}
	defer a.Close()

	actor, _ := cmd.Flags().GetString("actor")
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	return fn(ctx, a, actor)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func pauseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Stop calling patients at a location",
		RunE: func(cmd *cobra.Command, args []string) error {
			location, _ := cmd.Flags().GetString("location")
			return withApp(cmd, func(ctx context.Context, a *app.App, actor string) error {
				st, err := a.Services.Engine.PauseQueue(ctx, location, actor)
				if err != nil {
					return err
				}
				return printJSON(st)
			})
		},
	}
	cmd.Flags().StringP("location", "l", "", "clinic location")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func resumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused location and call the next patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			location, _ := cmd.Flags().GetString("location")
			return withApp(cmd, func(ctx context.Context, a *app.App, actor string) error {
				st, err := a.Services.Engine.ResumeQueue(ctx, location, actor)
				if err != nil {
					return err
				}
				return printJSON(st)
			})
		},
	}
	cmd.Flags().StringP("location", "l", "", "clinic location")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func boardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the queue board for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			location, _ := cmd.Flags().GetString("location")
			date, _ := cmd.Flags().GetString("date")

			var day time.Time
			if date != "" {
				var err error
				if day, err = time.Parse(model.DateLayout, date); err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}
			return withApp(cmd, func(ctx context.Context, a *app.App, _ string) error {
				items, err := a.Services.Engine.QueueBoard(ctx, location, day)
				if err != nil {
					return err
				}
				for _, it := range items {
					fmt.Printf("%3d  %-12s  %-8s  %s\n", it.Entry.QueueNumber, it.AppointmentStatus, it.VisitCode, it.PatientName)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringP("location", "l", "", "clinic location")
	cmd.Flags().String("date", "", "day to show (YYYY-MM-DD), default today")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func forceCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "force-complete <appointment-id>",
		Short: "Walk an appointment forward to completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid appointment id: %w", err)
			}
			reason, _ := cmd.Flags().GetString("reason")
			return withApp(cmd, func(ctx context.Context, a *app.App, actor string) error {
				res, err := a.Services.Engine.ForceComplete(ctx, id, reason, actor)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().String("reason", "", "note stored with the audit entries")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a staff bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var paths []string
			if dir, _ := cmd.Flags().GetString("config"); dir != "" {
				paths = append(paths, dir)
			}
			cfg, err := config.LoadConfig(paths...)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			location, _ := cmd.Flags().GetString("location")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			token, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer).GenerateToken(args[0], name, role, location, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("role", "reception", "staff role")
	cmd.Flags().StringP("location", "l", "", "home clinic location")
	cmd.Flags().Duration("ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App, _ string) error {
				applied, err := a.Migrate(ctx)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Println("schema is up to date")
					return nil
				}
				for _, name := range applied {
					fmt.Println("applied", name)
				}
				return nil
			})
		},
	}
}
