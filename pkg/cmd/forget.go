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
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newForgetCmd(config func() *BurstConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "forget node-id...",
		Short: "Remove nodes from the node store without touching the backend.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForget(config(), args, cmd.OutOrStdout())
		},
	}
}

func runForget(bc *BurstConfig, nodeIDs []string, w io.Writer) error {
	for _, nodeID := range nodeIDs {
		if err := bc.store.Delete(nodeID); err != nil {
			return err
		}
		log.WithField("node", nodeID).Debug("forgot node")
		fmt.Fprintf(w, "forgot %s\n", nodeID)
	}
	return nil
}
