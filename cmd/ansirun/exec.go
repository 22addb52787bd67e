package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/andrej220/ansirun/pkg/lg"
	"github.com/andrej220/ansirun/pkg/persistence"
	"github.com/andrej220/ansirun/pkg/runner"
)

var execCmd = &cobra.Command{
	Use:   "exec [module] [arguments]",
	Short: "Run one module on the target host",
	Long:  `Run one ansible module on the target host and print its result as JSON. The module defaults to "command".`,
	Args:  cobra.MaximumNArgs(2),
	RunE:  runExec,
}

var execOut string

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVarP(&execOut, "out", "o", "", "also write the result as JSON to this file")
}

func runExec(cmd *cobra.Command, args []string) error {
	module, arguments := moduleArgs(args)

	eng, err := newEngine(appCfg.Engine, nil, logger)
	if err != nil {
		return err
	}
	r, err := runner.New(appCfg.Runner, eng, logger)
	if err != nil {
		return err
	}

	res, err := r.Execute(cmd.Context(), module, arguments)
	if err != nil {
		printRunnerError(cmd.ErrOrStderr(), err)
		return err
	}
	return emitResult(cmd.OutOrStdout(), res, execOut)
}

// emitResult prints res and, when out is set, also saves it to that file.
func emitResult(w io.Writer, res runner.Result, out string) error {
	if out != "" {
		if err := persistence.WriteJSON(res, out); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		logger.Debug("Result written", lg.String("file", out))
	}
	return printJSON(w, res)
}

func moduleArgs(args []string) (module, arguments string) {
	if len(args) > 0 {
		module = args[0]
	}
	if len(args) > 1 {
		arguments = args[1]
	}
	return module, arguments
}

// printRunnerError shows the captured module output of a failed run.
func printRunnerError(w io.Writer, err error) {
	var runErr *runner.RunnerError
	if !errors.As(err, &runErr) {
		return
	}
	if runErr.Stdout != "" {
		fmt.Fprintln(w, runErr.Stdout)
	}
	if runErr.LogFile != "" {
		fmt.Fprintf(w, "see %s for more information\n", runErr.LogFile)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}
