/*
Copyright 2025 David Arnold
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gitlab.com/davidxarnold/burst/pkg/node"
)

// ErrTerminateFailed is returned when at least one node failed to terminate.
var ErrTerminateFailed = errors.New("one or more nodes failed to terminate")

type terminateOptions struct {
	all    bool
	forget bool
}

func newTerminateCmd(config func() *BurstConfig) *cobra.Command {
	opts := terminateOptions{}
	cmd := &cobra.Command{
		Use:   "terminate [node-id...]",
		Short: "Suspend or destroy nodes according to their termination policy.",
		Long: "Terminate reads each node's live state and, if it is running, suspends or destroys it " +
			"as its termination policy says. Nodes that are already stopped or gone are left alone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !opts.all {
				return fmt.Errorf("name at least one node id or pass --all")
			}
			return runTerminate(cmd.Context(), config(), args, opts, cmd.OutOrStdout(), outputFormat())
		},
	}

	cmd.Flags().BoolVar(&opts.all, "all", false, "terminate every stored node")
	cmd.Flags().BoolVar(&opts.forget, "forget", false, "remove destroyed nodes from the node store")

	return cmd
}

func runTerminate(
	ctx context.Context,
	bc *BurstConfig,
	nodeIDs []string,
	opts terminateOptions,
	w io.Writer,
	format string,
) error {
	if ctx == nil {
		ctx = context.Background()
	}
	nodes, err := bc.managedNodes(nodeIDs)
	if err != nil {
		return err
	}

	results := make([]terminateResult, len(nodes))
	errs := make([]error, len(nodes))
	var g errgroup.Group
	g.SetLimit(parallelism())
	for i, n := range nodes {
		results[i] = terminateResult{Node: n.DisplayName(), Policy: n.Policy(), Result: "ok"}
		i, n := i, n
		g.Go(func() error {
			if err := n.Terminate(ctx); err != nil {
				errs[i] = err
				results[i].Result = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	if opts.forget {
		for i, n := range nodes {
			if errs[i] != nil || n.Policy() != node.PolicyDestroy {
				continue
			}
			if err := bc.store.Delete(n.NodeID()); err != nil {
				errs[i] = err
				results[i].Result = err.Error()
				continue
			}
			log.WithField("node", n.DisplayName()).Debug("forgot destroyed node")
			results[i].Result = "ok, forgotten"
		}
	}

	if err := renderTerminateResults(w, format, results); err != nil {
		return err
	}
	if joined := errors.Join(errs...); joined != nil {
		return fmt.Errorf("%w: %w", ErrTerminateFailed, joined)
	}
	return nil
}
