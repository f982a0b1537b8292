package cliplugins

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"text/tabwriter"
	"time"

	discoverymanager "drilltrack/internal/discovery_manager"
	"drilltrack/internal/netstate"

	"github.com/spf13/cobra"
)

type DiscoverCommand struct {
	cmd *cobra.Command
}

func NewDiscoverCommand() *DiscoverCommand {
	return &DiscoverCommand{}
}

func (d *DiscoverCommand) Meta() *cobra.Command {
	if d.cmd != nil {
		return d.cmd
	}
	d.cmd = &cobra.Command{
		Use:   "discover",
		Short: "Find drilltrack servers on the local network",
		Long:  "Broadcasts one client_discovery request and lists the servers that answer before the timeout.",
	}
	d.cmd.Flags().String("address", "255.255.255.255", "Broadcast or server address")
	d.cmd.Flags().IntP("port", "p", int(netstate.DefaultDiscoveryPort), "Discovery port")
	d.cmd.Flags().DurationP("timeout", "t", 2*time.Second, "How long to wait for responses")
	d.cmd.Flags().String("name", "drilltrack-cli", "Client name sent with the request")
	d.cmd.Flags().Bool("json", false, "Print responses as JSON")
	return d.cmd
}

func (d *DiscoverCommand) Execute(cmd *cobra.Command, args []string) error {
	address, _ := cmd.Flags().GetString("address")
	port, _ := cmd.Flags().GetInt("port")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	name, _ := cmd.Flags().GetString("name")
	asJSON, _ := cmd.Flags().GetBool("json")

	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}

	servers, err := discoverymanager.Probe(cmd.Context(), net.JoinHostPort(address, strconv.Itoa(port)), name, timeout)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(servers)
	}

	if len(servers) == 0 {
		fmt.Fprintln(out, "No servers found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tIP\tHTTP\tDISCOVERY\tFROM\tINSTANCE")
	for _, s := range servers {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n", s.Name, s.IP, s.HTTPPort, s.DiscoveryPort, s.From, s.InstanceID)
	}
	return w.Flush()
}
