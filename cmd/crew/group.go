package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xenn00/crew-chat/internal/dtos/chat_dto"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage chat groups",
}

var groupDescription string

var groupCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group with the current user as admin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := contextWithCancel(cmd)
		defer cancel()

		app, service, err := openBackend(ctx, cancel)
		if err != nil {
			return err
		}
		defer app.Close()

		req := chat_dto.CreateGroupRequest{Name: args[0]}
		if groupDescription != "" {
			req.Description = &groupDescription
		}

		group, appErr := service.CreateGroup(ctx, req, userID)
		if appErr != nil {
			return appErr
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", group.ID, group.Name)
		return nil
	},
}

func init() {
	groupCreateCmd.Flags().StringVarP(&groupDescription, "description", "d", "", "Group description")
}
