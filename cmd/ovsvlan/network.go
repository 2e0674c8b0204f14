package main

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ovsnet/ovsvlan/pkg/plugin"
)

var (
	networkCreateCmd = &cobra.Command{
		Use:   "create <tenant> <name>",
		Short: "create a network and bind a vlan to it.",
		Args:  cobra.ExactArgs(2),
		RunE:  runNetworkCreate,
	}

	networkDeleteCmd = &cobra.Command{
		Use:   "delete <tenant> <network-id>",
		Short: "delete a network and release its vlan.",
		Args:  cobra.ExactArgs(2),
		RunE:  runNetworkDelete,
	}

	networkMoveCmd = &cobra.Command{
		Use:   "move <tenant> <network-id> <vlan>",
		Short: "rebind a network to a free vlan.",
		Args:  cobra.ExactArgs(3),
		RunE:  runNetworkMove,
	}

	networkListCmd = &cobra.Command{
		Use:   "list <tenant>",
		Short: "list the networks of a tenant.",
		Args:  cobra.ExactArgs(1),
		RunE:  runNetworkList,
	}
)

func runNetworkCreate(cmd *cobra.Command, args []string) error {
	info, err := plg.CreateNetwork(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	pterm.Success.Printfln("created network %s (%s) on vlan %d", info.ID, info.Name, info.VlanID)
	return nil
}

func runNetworkDelete(cmd *cobra.Command, args []string) error {
	info, err := plg.DeleteNetwork(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	pterm.Success.Printfln("deleted network %s, vlan %d released", info.ID, info.VlanID)
	return nil
}

func runNetworkMove(cmd *cobra.Command, args []string) error {
	vlanID, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid vlan %q, %w", args[2], err)
	}
	info, err := plg.MoveNetworkVlan(ctx, args[0], args[1], vlanID)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("moved network %s to vlan %d", info.ID, info.VlanID)
	return nil
}

func runNetworkList(cmd *cobra.Command, args []string) error {
	networks, err := plg.ListNetworks(ctx, args[0])
	if err != nil {
		return err
	}
	return pterm.DefaultTable.WithHasHeader().WithData(networkTable(networks)).Render()
}

const (
	tableHeaderNetworkID = "Network ID"
	tableHeaderName      = "Name"
	tableHeaderVlan      = "Vlan"
)

func networkTable(networks []*plugin.NetworkInfo) pterm.TableData {
	data := pterm.TableData{{tableHeaderNetworkID, tableHeaderName, tableHeaderVlan}}
	return append(data, lo.Map(networks, func(n *plugin.NetworkInfo, _ int) []string {
		return []string{n.ID, n.Name, vlanString(n.VlanID)}
	})...)
}

func vlanString(id int) string {
	if id == 0 {
		return pterm.ThemeDefault.WarningMessageStyle.Sprint("none")
	}
	return strconv.Itoa(id)
}

func printKV(k, v string) string {
	return fmt.Sprintf("%s: %s", k, v)
}
