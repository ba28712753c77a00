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
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/client-go/kubernetes"

	"gitlab.com/davidxarnold/burst/pkg/cloud"
	"gitlab.com/davidxarnold/burst/pkg/node"
	"gitlab.com/davidxarnold/burst/pkg/util"
)

type adoptOptions struct {
	profile        string
	selector       string
	policy         string
	user           string
	privateKeyFile string
	labels         string
	remoteFS       string
	executors      int
}

func newAdoptCmd(config func() *BurstConfig) *cobra.Command {
	opts := adoptOptions{}
	kubeFlags := genericclioptions.NewConfigFlags(true)

	cmd := &cobra.Command{
		Use:   "adopt",
		Short: "Record Kubernetes nodes backed by a cloud profile in the node store.",
		Long: "Adopt lists cluster nodes, keeps those whose providerID matches the profile's backend type " +
			"and stores an identity for each so they can be described and terminated.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			restConfig, err := kubeFlags.ToRESTConfig()
			if err != nil {
				return fmt.Errorf("load kubeconfig: %w", err)
			}
			clientset, err := kubernetes.NewForConfig(restConfig)
			if err != nil {
				return fmt.Errorf("create kubernetes client: %w", err)
			}
			return runAdopt(cmd.Context(), config(), clientset, opts, cmd.OutOrStdout(), outputFormat())
		},
	}

	kubeFlags.AddFlags(cmd.Flags())
	cmd.Flags().StringVar(&opts.profile, "profile", "", "cloud profile that governs the adopted nodes")
	cmd.Flags().StringVarP(&opts.selector, "selector", "l", "", "label selector for the nodes to adopt")
	cmd.Flags().StringVar(&opts.policy, "policy", string(node.PolicyDestroy), "termination policy. One of: suspend|destroy")
	cmd.Flags().StringVar(&opts.user, "login-user", "", "login user for the adopted nodes")
	cmd.Flags().StringVar(&opts.privateKeyFile, "private-key-file", "", "file holding the login private key")
	cmd.Flags().StringVar(&opts.labels, "labels", "", "space separated build labels")
	cmd.Flags().StringVar(&opts.remoteFS, "remote-fs", "", "remote filesystem root on the node")
	cmd.Flags().IntVar(&opts.executors, "executors", 1, "number of executors on the node")
	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("remote-fs")

	return cmd
}

func (o adoptOptions) credential() (cloud.LoginCredentials, error) {
	creds := cloud.LoginCredentials{User: o.user}
	if o.privateKeyFile == "" {
		return creds, nil
	}
	key, err := os.ReadFile(o.privateKeyFile)
	if err != nil {
		return creds, fmt.Errorf("read private key: %w", err)
	}
	creds.PrivateKey = string(key)
	return creds, nil
}

func runAdopt(
	ctx context.Context,
	bc *BurstConfig,
	clientset kubernetes.Interface,
	opts adoptOptions,
	w io.Writer,
	format string,
) error {
	if ctx == nil {
		ctx = context.Background()
	}

	profile, ok := bc.registry.Profile(opts.profile)
	if !ok {
		return fmt.Errorf("%w: %q", cloud.ErrProfileNotFound, opts.profile)
	}
	policy, err := node.ParseTerminationPolicy(opts.policy)
	if err != nil {
		return err
	}
	creds, err := opts.credential()
	if err != nil {
		return err
	}

	nodes, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{LabelSelector: opts.selector})
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	adopted := []node.Identity{}
	for _, n := range nodes.Items {
		logger := log.WithField("node", n.Name)
		if n.Spec.ProviderID == "" {
			logger.Debug("skipping node without providerID")
			continue
		}
		cp, nodeID, err := util.NodeIDFromProviderID(n.Spec.ProviderID)
		if err != nil {
			logger.Warnf("skipping node: %v", err)
			continue
		}
		if cp != profile.Type {
			logger.Debugf("skipping %s node for %s profile", cp, profile.Type)
			continue
		}

		md := &cloud.Metadata{ID: nodeID, Name: n.Name, Credentials: &creds}
		mn, err := node.NewFromMetadata(bc.registry, profile.Name, md, node.Options{
			Labels:       opts.labels,
			Description:  fmt.Sprintf("adopted from Kubernetes node %s", n.Name),
			RemoteFS:     opts.remoteFS,
			NumExecutors: opts.executors,
			Policy:       policy,
		})
		if err != nil {
			return fmt.Errorf("adopt %s: %w", n.Name, err)
		}
		id := mn.Identity()
		if err := bc.store.Put(id); err != nil {
			return fmt.Errorf("adopt %s: %w", n.Name, err)
		}
		logger.WithField("nodeId", nodeID).Info("adopted node")
		adopted = append(adopted, id)
	}

	return renderIdentities(w, format, adopted)
}
