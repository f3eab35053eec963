/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/loqalabs/loqa-todo/internal/todo"
	"github.com/spf13/cobra"
)

var (
	listSort     string
	listFilter   string
	outputFormat string
	clearDone    bool
	assumeYes    bool
	deleteByID   bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage tasks on the backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return setupLogging(true)
	},
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, c *todo.Client, args []string) error {
		filter, err := parseFilter(listFilter)
		if err != nil {
			return err
		}
		tasks, err := c.ListTasks(ctx, todo.ParseSortMode(listSort), filter)
		if err != nil {
			return err
		}
		return printTasks(os.Stdout, tasks, outputFormat)
	}),
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a task, e.g. \"buy milk tomorrow high priority\"",
	Args:  cobra.MinimumNArgs(1),
	RunE: withClient(func(ctx context.Context, c *todo.Client, args []string) error {
		return printReply(c.Add(ctx, strings.Join(args, " ")))
	}),
}

var tasksDoneCmd = &cobra.Command{
	Use:   "done <name>",
	Short: "Mark a task as done by name",
	Args:  cobra.MinimumNArgs(1),
	RunE: withClient(func(ctx context.Context, c *todo.Client, args []string) error {
		return printReply(c.MarkByName(ctx, strings.Join(args, " ")))
	}),
}

var tasksToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Toggle completion of a task by ID",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *todo.Client, args []string) error {
		return printReply(c.Toggle(ctx, args[0]))
	}),
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a task by name, or by ID with --id",
	Args:  cobra.MinimumNArgs(1),
	RunE: withClient(func(ctx context.Context, c *todo.Client, args []string) error {
		target := strings.Join(args, " ")
		if !confirm(os.Stdin, os.Stdout, fmt.Sprintf("Delete %q?", target)) {
			fmt.Println("Cancelled.")
			return nil
		}
		if deleteByID {
			return printReply(c.Delete(ctx, args[0]))
		}
		return printReply(c.DeleteByName(ctx, target))
	}),
}

var tasksClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all tasks, or only completed ones with --completed",
	Args:  cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, c *todo.Client, args []string) error {
		question := "Delete all tasks?"
		if clearDone {
			question = "Delete all completed tasks?"
		}
		if !confirm(os.Stdin, os.Stdout, question) {
			fmt.Println("Cancelled.")
			return nil
		}
		if clearDone {
			return printReply(c.ClearCompleted(ctx))
		}
		return printReply(c.ClearAll(ctx))
	}),
}

func init() {
	tasksListCmd.Flags().StringVar(&listSort, "sort", "created", "Sort order: created, priority, category, due")
	tasksListCmd.Flags().StringVar(&listFilter, "filter", "all", "Filter: all, pending, completed")
	tasksListCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
	tasksDeleteCmd.Flags().BoolVar(&deleteByID, "id", false, "Treat the argument as a task ID")
	tasksClearCmd.Flags().BoolVar(&clearDone, "completed", false, "Only delete completed tasks")
	tasksCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")

	tasksCmd.AddCommand(tasksListCmd, tasksAddCmd, tasksDoneCmd, tasksToggleCmd, tasksDeleteCmd, tasksClearCmd)
	rootCmd.AddCommand(tasksCmd)
}

func withClient(run func(ctx context.Context, c *todo.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := todo.NewClient(cfg.Backend)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, stop := signalContext()
		defer stop()
		return run(ctx, client, args)
	}
}

func parseFilter(value string) (todo.DoneFilter, error) {
	switch strings.ToLower(value) {
	case "", "all":
		return todo.FilterAll, nil
	case "pending", "open":
		return todo.FilterPending, nil
	case "completed", "done":
		return todo.FilterCompleted, nil
	default:
		return todo.FilterAll, fmt.Errorf("unknown filter %q (want all, pending or completed)", value)
	}
}

func printReply(reply *todo.Reply, err error) error {
	if err != nil {
		return err
	}
	if reply != nil && reply.Message != "" {
		fmt.Println(reply.Message)
	}
	return nil
}

func printTasks(out io.Writer, tasks []todo.Task, format string) error {
	if format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(tasks)
	}

	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDONE\tNAME\tPRIORITY\tCATEGORY\tDUE")
	fmt.Fprintln(w, "--\t----\t----\t--------\t--------\t---")

	for _, task := range tasks {
		done := " "
		if task.Done {
			done = "✓"
		}
		due := "-"
		if task.DueDate != nil && !task.DueDate.IsZero() {
			due = task.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			task.ID,
			done,
			task.Name,
			todo.PriorityWord(task.Priority),
			task.Category,
			due,
		)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("error flushing output: %w", err)
	}
	fmt.Fprintf(out, "\nTotal: %d tasks\n", len(tasks))
	return nil
}

// confirm asks a yes/no question unless --yes was given
func confirm(in io.Reader, out io.Writer, question string) bool {
	if assumeYes {
		return true
	}
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
