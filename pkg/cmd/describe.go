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
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func newDescribeCmd(config func() *BurstConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "describe [node-id...]",
		Short: "Show live backend metadata for stored nodes.",
		Long:  "Describe fetches metadata for the given nodes, or for every stored node when none are named.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(cmd.Context(), config(), args, cmd.OutOrStdout(), outputFormat())
		},
	}
}

func parallelism() int {
	if p := viper.GetInt("parallelism"); p > 0 {
		return p
	}
	return defaultParallelism
}

func runDescribe(ctx context.Context, bc *BurstConfig, nodeIDs []string, w io.Writer, format string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	nodes, err := bc.managedNodes(nodeIDs)
	if err != nil {
		return err
	}

	views := make([]nodeView, len(nodes))
	var g errgroup.Group
	g.SetLimit(parallelism())
	for i, n := range nodes {
		views[i].Identity = n.Identity()
		i, n := i, n
		g.Go(func() error {
			md, err := n.Metadata(ctx)
			if err != nil {
				log.WithField("node", n.DisplayName()).Warnf("describe: %v", err)
				views[i].Error = err.Error()
				return nil
			}
			views[i].Metadata = md
			return nil
		})
	}
	_ = g.Wait()

	return renderNodes(w, format, views)
}
