package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ovsnet/ovsvlan/pkg/vlan"
)

var (
	vlanListCmd = &cobra.Command{
		Use:   "list",
		Short: "list vlan tags bound to a network.",
		Args:  cobra.NoArgs,
		RunE:  runVlanList,
	}

	vlanStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "show vlan pool usage.",
		Args:  cobra.NoArgs,
		RunE:  runVlanStats,
	}
)

func runVlanList(cmd *cobra.Command, args []string) error {
	persisted, err := plg.ListVlanBindings()
	if err != nil {
		return err
	}
	return pterm.DefaultTable.WithHasHeader().WithData(bindingTable(persisted)).Render()
}

func bindingTable(bindings []vlan.Binding) pterm.TableData {
	data := pterm.TableData{{tableHeaderVlan, tableHeaderNetworkID}}
	return append(data, lo.Map(bindings, func(b vlan.Binding, _ int) []string {
		return []string{strconv.Itoa(b.VlanID), b.NetworkID}
	})...)
}

func runVlanStats(cmd *cobra.Command, args []string) error {
	pterm.Println(strings.Join(statsLines(plg.Pool().Stats()), "\n"))
	return nil
}

func statsLines(s vlan.Stats) []string {
	return []string{
		printKV("range", fmt.Sprintf("[%d, %d)", s.Start, s.End)),
		printKV("capacity", strconv.Itoa(s.Capacity)),
		printKV("in use", strconv.Itoa(s.InUse)),
		printKV("free", strconv.Itoa(s.Capacity-s.InUse)),
	}
}
