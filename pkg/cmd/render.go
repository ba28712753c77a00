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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	pt "github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"gitlab.com/davidxarnold/burst/pkg/cloud"
	"gitlab.com/davidxarnold/burst/pkg/node"
)

const (
	outputAuto   = "auto"
	outputTable  = "table"
	outputPretty = "pretty"
	outputJSON   = "json"
)

// outputFormat resolves the configured format; auto picks pretty on a terminal.
func outputFormat() string {
	switch f := strings.ToLower(viper.GetString("output")); f {
	case outputTable, outputPretty, outputJSON:
		return f
	default:
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return outputPretty
		}
		return outputTable
	}
}

// newTable returns a table writer styled for format and mirrored to w.
func newTable(w io.Writer, format string) pt.Writer {
	t := pt.NewWriter()
	t.SetOutputMirror(w)
	if format == outputPretty {
		t.SetStyle(pt.StyleColoredBright)
		return t
	}
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	t.Style().Options.SeparateFooter = false
	t.Style().Options.SeparateHeader = false
	t.Style().Options.SeparateRows = false
	return t
}

func renderJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func renderIdentities(w io.Writer, format string, ids []node.Identity) error {
	if format == outputJSON {
		return renderJSON(w, ids)
	}

	t := newTable(w, format)
	t.AppendHeader(pt.Row{"Name", "Node-ID", "Profile", "Policy", "Labels"})
	for _, id := range ids {
		t.AppendRow(pt.Row{id.DisplayName, id.NodeID, id.CloudProfile, id.TerminationPolicy, id.Labels})
	}
	t.AppendFooter(pt.Row{"Total", len(ids), "", "", ""})
	t.Render()
	return nil
}

// nodeView is the rendered form of a described node.
type nodeView struct {
	node.Identity
	Metadata *cloud.Metadata `json:",omitempty"`
	Error    string          `json:",omitempty"`
}

func renderNodes(w io.Writer, format string, views []nodeView) error {
	if format == outputJSON {
		return renderJSON(w, views)
	}

	t := newTable(w, format)
	t.AppendHeader(pt.Row{"Name", "Node-ID", "Profile", "State", "Instance-Type", "Location", "Addresses"})
	for _, nv := range views {
		state, itype, loc, addrs := "GONE", "", "", ""
		if nv.Metadata != nil {
			state = string(nv.Metadata.State)
			itype = nv.Metadata.InstanceType
			loc = nv.Metadata.Location
			addrs = strings.Join(append(append([]string{}, nv.Metadata.PublicAddresses...), nv.Metadata.PrivateAddresses...), ",")
		}
		if nv.Error != "" {
			state = "ERROR: " + nv.Error
		}
		t.AppendRow(pt.Row{nv.DisplayName, nv.NodeID, nv.CloudProfile, state, itype, loc, addrs})
	}
	t.Render()
	return nil
}

// terminateResult is the outcome of terminating one node.
type terminateResult struct {
	Node   string
	Policy node.TerminationPolicy
	Result string
}

func renderTerminateResults(w io.Writer, format string, results []terminateResult) error {
	if format == outputJSON {
		return renderJSON(w, results)
	}

	t := newTable(w, format)
	t.AppendHeader(pt.Row{"Name", "Policy", "Result"})
	for _, r := range results {
		t.AppendRow(pt.Row{r.Node, r.Policy, r.Result})
	}
	t.Render()
	return nil
}
