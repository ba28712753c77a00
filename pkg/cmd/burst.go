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
	"strings"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gitlab.com/davidxarnold/burst/pkg/cloud"
	"gitlab.com/davidxarnold/burst/pkg/node"
	"gitlab.com/davidxarnold/burst/pkg/store"
	"gitlab.com/davidxarnold/burst/pkg/util"
	v "gitlab.com/davidxarnold/burst/version"
)

const defaultParallelism = 4

var cfgFile string

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			log.Fatalln(err)
		}

		// Search config in home directory with name ".burst" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".burst")
	}

	viper.SetEnvPrefix("burst")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.Debugln("Using config file:", viper.ConfigFileUsed())
	}
}

// BurstConfig holds the profile registry and the node store shared by all
// subcommands.
type BurstConfig struct {
	registry *cloud.Registry
	store    *store.FileStore
}

// NewBurstConfig builds a BurstConfig from the loaded configuration.
func NewBurstConfig() (*BurstConfig, error) {
	profiles := map[string]cloud.Profile{}
	if err := viper.UnmarshalKey("profiles", &profiles); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}

	st, err := store.Open(viper.GetString("store"))
	if err != nil {
		return nil, err
	}

	return &BurstConfig{
		registry: cloud.NewRegistry(profiles),
		store:    st,
	}, nil
}

// managedNode rehydrates the managed node stored under nodeID.
func (bc *BurstConfig) managedNode(nodeID string) (*node.ManagedNode, error) {
	id, err := bc.store.Get(nodeID)
	if err != nil {
		return nil, err
	}
	return node.FromIdentity(bc.registry, id), nil
}

// managedNodes rehydrates the named nodes, or every stored node when nodeIDs
// is empty.
func (bc *BurstConfig) managedNodes(nodeIDs []string) ([]*node.ManagedNode, error) {
	if len(nodeIDs) == 0 {
		ids := bc.store.List()
		nodes := make([]*node.ManagedNode, 0, len(ids))
		for _, id := range ids {
			nodes = append(nodes, node.FromIdentity(bc.registry, id))
		}
		return nodes, nil
	}

	nodes := make([]*node.ManagedNode, 0, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		n, err := bc.managedNode(nodeID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// NewBurstCmd provides a cobra command
func NewBurstCmd() *cobra.Command {
	var (
		output      string
		storePath   string
		logLevel    string
		parallelism int
		bc          *BurstConfig
	)

	cmd := &cobra.Command{
		Use:           "burst",
		Short:         "Manage cloud-burst build nodes.",
		Long:          "Burst tracks provisioned cloud nodes and suspends or destroys them according to their termination policy.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := util.SetupLogger(); err != nil {
				return err
			}
			var err error
			bc, err = NewBurstConfig()
			return err
		},
	}

	cmd.Version = v.Version

	cmd.PersistentFlags().StringVar(
		&cfgFile, "config", "",
		"config file (default is $HOME/.burst.yaml)")
	cmd.PersistentFlags().StringVarP(
		&output, "output", "o", "auto",
		"-o, --output='': Output format. One of: auto|table|pretty|json")
	cmd.PersistentFlags().StringVar(
		&storePath, "store", "",
		"node store file (default is $HOME/.burst/nodes.yaml)")
	cmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "",
		"log level. One of: trace|debug|info|warn|error")
	cmd.PersistentFlags().IntVar(
		&parallelism, "parallelism", defaultParallelism,
		"maximum number of nodes handled concurrently")

	config := func() *BurstConfig { return bc }
	cmd.AddCommand(
		newListCmd(config),
		newDescribeCmd(config),
		newTerminateCmd(config),
		newForgetCmd(config),
		newAdoptCmd(config),
	)

	cobra.OnInitialize(initConfig)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	_ = viper.BindPFlag("output", cmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("store", cmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("log-level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("parallelism", cmd.PersistentFlags().Lookup("parallelism"))

	return cmd
}
