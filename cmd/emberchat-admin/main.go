package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/emberchat/emberchat/config"
	"github.com/emberchat/emberchat/globals"
	"github.com/emberchat/emberchat/persistence"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// A very simple CLI tool for inspecting and cleaning up persisted emberchat
// rooms. It talks to the configured persistence backend directly, so run it
// against the same configuration as the server.

var configPath = pflag.StringP("config", "c", "", "path to config file or directory")

func main() {
	log.SetFlags(0)

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show rooms or messages",
		Long:  `show is for printing persisted rooms and message histories.`,
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show rooms",
		Long:  `show rooms lists all persisted rooms.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			rooms, err := persister.GetRooms()
			if err != nil {
				globals.AppLogger.Error("could not get rooms", "error", err)
				return
			}
			r, err := json.Marshal(rooms)
			if err != nil {
				globals.AppLogger.Error("could not marshal rooms", "error", err)
				return
			}
			fmt.Println(string(r))
		},
	}
	var cmdShowMessages = &cobra.Command{
		Use:   "messages [room id]",
		Short: "Show messages",
		Long:  `show messages prints the persisted message history of the room with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			messages, err := persister.GetMessages(args[0])
			if err != nil {
				globals.AppLogger.Error("could not get messages", "error", err)
				return
			}
			m, err := json.Marshal(messages)
			if err != nil {
				globals.AppLogger.Error("could not marshal messages", "error", err)
				return
			}
			fmt.Println(string(m))
		},
	}
	var cmdDelete = &cobra.Command{
		Use:   "delete",
		Short: "Delete a room",
		Long:  `delete removes persisted state.`,
		Args:  cobra.MinimumNArgs(0),
	}
	var cmdDeleteRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Delete room",
		Long:  `delete room removes the room with the given id together with its messages.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := persister.DeleteRoom(args[0]); err != nil {
				globals.AppLogger.Error("could not delete room", "error", err)
				return
			}
		},
	}

	var rootCmd = &cobra.Command{Use: "emberchat-admin"}
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)
	cmdShow.AddCommand(cmdShowRooms, cmdShowMessages)
	cmdDelete.AddCommand(cmdDeleteRoom)
	rootCmd.AddCommand(cmdShow, cmdDelete)
	if err := rootCmd.Execute(); err != nil {
		globals.AppLogger.Error("command failed", "error", err)
	}
}
