/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package topology

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/carverauto/flowtopo/pkg/models"
)

// AgentName derives a readable switch name from an sFlow source
// identifier. Identifiers of the form "2:1NNN" come from datapath numbering
// that starts at 1000, so "2:1012" maps to "sw-13".
func AgentName(agentID string) string {
	if strings.HasPrefix(agentID, "2:1") {
		suffix := agentID[strings.Index(agentID, ":")+1:]

		if n, err := strconv.Atoi(suffix); err == nil {
			if n >= 1000 && n < 2000 {
				n -= 1000 - 1
			}

			return "sw-" + strconv.Itoa(n)
		}

		return "sw-" + suffix
	}

	return "sw-" + agentID
}

// HostName derives a readable end-station name. Hosts in the 10.0.0.0/24
// lab convention become "h<last octet>", other addressed hosts "h-<ip>",
// and a MAC with no learned address "h-<mac>".
func HostName(h *models.Host) string {
	const labPrefix = "10.0.0."

	if strings.HasPrefix(h.IP, labPrefix) {
		return "h" + h.IP[len(labPrefix):]
	}

	if h.IP != "" {
		return "h-" + h.IP
	}

	return "h-" + h.MAC
}

// pythonVar rewrites a node name into a valid Python identifier for the
// generated Mininet script.
func pythonVar(name string) string {
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, ":", "_")

	return name
}

// WriteDOT renders the snapshot as a Graphviz graph. Inferred edges are
// solid and labeled with their confidence; ambiguous candidate links are
// dashed so a hub shows up visually instead of disappearing.
func WriteDOT(w io.Writer, snap *models.TopologySnapshot) error {
	var b strings.Builder

	b.WriteString("graph G {\n")

	for i := range snap.Agents {
		agent := &snap.Agents[i]

		shape := ""
		if agent.Stale {
			shape = ", style=dotted"
		}

		fmt.Fprintf(&b, "  %q [label=%q%s]\n", agent.AgentID, AgentName(agent.AgentID), shape)
	}

	for i := range snap.Hosts {
		h := &snap.Hosts[i]
		fmt.Fprintf(&b, "  %q [label=%q, shape=box]\n", h.MAC, HostName(h))
		fmt.Fprintf(&b, "  %q -- %q [label=\"%d\"]\n", h.Attachment.AgentID, h.MAC, h.Attachment.IfIndex)
	}

	for i := range snap.Edges {
		edge := &snap.Edges[i]
		fmt.Fprintf(&b, "  %q -- %q [label=\"%d:%d conf=%.2f\"]\n",
			edge.A.AgentID, edge.B.AgentID, edge.A.IfIndex, edge.B.IfIndex, edge.Confidence)
	}

	for i := range snap.Ambiguous {
		ai := &snap.Ambiguous[i]
		for j := range ai.Candidates {
			c := &ai.Candidates[j]
			fmt.Fprintf(&b, "  %q -- %q [style=dashed, label=\"ambiguous %.2f\"]\n",
				ai.Endpoint.AgentID, c.Peer.AgentID, c.Overlap)
		}
	}

	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())

	return err
}

const mininetHeader = `from mininet.net import Mininet
from mininet.node import Controller
from mininet.cli import CLI

net = Mininet(controller=Controller)
c0 = net.addController('c0')
`

const mininetFooter = `
net.start()
CLI(net)
net.stop()
`

// WriteMininet emits a Python script that recreates the inferred topology
// in Mininet for side-by-side validation against the live network.
func WriteMininet(w io.Writer, snap *models.TopologySnapshot) error {
	var b strings.Builder

	b.WriteString(mininetHeader)

	for i := range snap.Agents {
		name := pythonVar(AgentName(snap.Agents[i].AgentID))
		fmt.Fprintf(&b, "%s = net.addSwitch('%s')\n", name, name)
	}

	for i := range snap.Hosts {
		name := pythonVar(HostName(&snap.Hosts[i]))
		fmt.Fprintf(&b, "%s = net.addHost('%s')\n", name, name)
	}

	for i := range snap.Edges {
		edge := &snap.Edges[i]
		a := pythonVar(AgentName(edge.A.AgentID))
		z := pythonVar(AgentName(edge.B.AgentID))
		fmt.Fprintf(&b, "net.addLink(%s, %s)\n", a, z)
	}

	for i := range snap.Hosts {
		h := &snap.Hosts[i]
		fmt.Fprintf(&b, "net.addLink(%s, %s)\n", pythonVar(HostName(h)), pythonVar(AgentName(h.Attachment.AgentID)))
	}

	b.WriteString(mininetFooter)

	_, err := io.WriteString(w, b.String())

	return err
}
